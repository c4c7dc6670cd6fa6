package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

const notifyTimeout = 5 * time.Second

// NotificationService sends desktop notifications for playback events
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(ctx context.Context, name string, args ...string) error

	mu     sync.Mutex
	titles map[string]string
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		titles: make(map[string]string),
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptString(message), appleScriptString(title))
		err = n.run(ctx, "osascript", "-e", script)
	case "notify-send":
		err = n.run(ctx, "notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// Observe sends notifications for buffered, finished and failed downloads
// and for catalog connection errors.
func (n *NotificationService) Observe(ev domain.Event) {
	switch e := ev.(type) {
	case domain.DownloadStarting:
		n.mu.Lock()
		n.titles[e.SessionID] = e.Title
		n.mu.Unlock()
	case domain.DownloadBuffered:
		n.notify("Ready to Play", fmt.Sprintf("%s can start playing", n.title(e.SessionID, false)))
	case domain.DownloadStopped:
		title := n.title(e.SessionID, true)
		if e.Completed {
			n.notify("Download Completed", fmt.Sprintf("%s is fully downloaded", title))
		}
	case domain.DownloadFailed:
		n.notify("Download Failed", fmt.Sprintf("%s: %s", n.title(e.SessionID, true), truncateString(e.Reason, 60)))
	case domain.ConnectionError:
		if e.IsInError {
			n.notify("Connection Error", "The movie catalog cannot be reached")
		}
	}
}

func (n *NotificationService) title(sessionID string, forget bool) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	title, ok := n.titles[sessionID]
	if forget {
		delete(n.titles, sessionID)
	}
	if !ok || title == "" {
		return "Movie"
	}
	return truncateString(title, 40)
}

// notify sends off the dispatcher goroutine.
func (n *NotificationService) notify(title, message string) {
	if !n.config.Enabled {
		return
	}
	go n.Send(title, message)
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
