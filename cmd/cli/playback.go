package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/garycarlyle/TVShow/api/handlers"
	"github.com/garycarlyle/TVShow/internal/domain"
)

var playCmd = &cobra.Command{
	Use:   "play [movie-id]",
	Short: "Start streaming the smallest torrent of a movie",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fatal(fmt.Errorf("invalid movie id %q", args[0]))
		}

		var snap domain.PlaybackSnapshot
		if request(http.MethodPost, "/api/v1/playback", handlers.PlayRequest{MovieID: id}, &snap) {
			fmt.Printf("Started %s (%s)\n", snap.Title, snap.Quality)
			fmt.Printf("Session: %s\n", snap.SessionID)
			fmt.Println("Run 'tvshow watch' to follow progress")
		}
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current download and delete its data",
	Run: func(cmd *cobra.Command, args []string) {
		var snap domain.PlaybackSnapshot
		if request(http.MethodDelete, "/api/v1/playback", nil, &snap) {
			fmt.Println("Playback stopped")
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current download",
	Run: func(cmd *cobra.Command, args []string) {
		var snap domain.PlaybackSnapshot
		if !request(http.MethodGet, "/api/v1/playback", nil, &snap) {
			return
		}
		printSnapshot(snap)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow catalog and playback events",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		types, _ := cmd.Flags().GetStringSlice("types")
		wsURL, err := eventsURL(serverURL, types)
		if err != nil {
			fatal(err)
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			fatal(fmt.Errorf("failed to connect to %s: %w", wsURL, err))
		}
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		go func() {
			<-interrupt
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if jsonOutput {
				fmt.Println(string(data))
				continue
			}
			fmt.Println(describeEvent(data))
		}
	},
}

func init() {
	watchCmd.Flags().StringSliceP("types", "t", nil, "Only these event types (e.g. download_progress,download_buffered)")
}

func eventsURL(base string, types []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/events"
	if len(types) > 0 {
		u.RawQuery = url.Values{"types": {strings.Join(types, ",")}}.Encode()
	}
	return u.String(), nil
}

// describeEvent renders one event envelope as a line of text.
func describeEvent(data []byte) string {
	var env struct {
		Type    domain.EventKind `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return string(data)
	}

	switch env.Type {
	case domain.KindCatalogLoading:
		return "catalog: loading"
	case domain.KindCatalogLoaded:
		var e domain.CatalogLoaded
		json.Unmarshal(env.Payload, &e)
		if e.HadError {
			return "catalog: load failed"
		}
		return fmt.Sprintf("catalog: %d movies added", e.ItemsAdded)
	case domain.KindConnectionError:
		var e domain.ConnectionError
		json.Unmarshal(env.Payload, &e)
		if e.IsInError {
			return "catalog: connection lost (run 'tvshow retry')"
		}
		return "catalog: connection restored"
	case domain.KindDownloadStarting:
		var e domain.DownloadStarting
		json.Unmarshal(env.Payload, &e)
		return fmt.Sprintf("download: starting %s (%s)", e.Title, e.Quality)
	case domain.KindDownloadProgress:
		var e domain.DownloadProgress
		json.Unmarshal(env.Payload, &e)
		return fmt.Sprintf("download: %.2f%% at %.1f KB/s", e.Percent, e.RateKBps)
	case domain.KindDownloadBuffered:
		var e domain.DownloadBuffered
		json.Unmarshal(env.Payload, &e)
		return fmt.Sprintf("download: ready to play %s", e.FilePath)
	case domain.KindDownloadStopped:
		var e domain.DownloadStopped
		json.Unmarshal(env.Payload, &e)
		if e.Completed {
			return "download: completed"
		}
		return "download: stopped"
	case domain.KindDownloadFailed:
		var e domain.DownloadFailed
		json.Unmarshal(env.Payload, &e)
		return fmt.Sprintf("download: failed: %s", e.Reason)
	case domain.KindFeatureFailed:
		var e domain.FeatureFailed
		json.Unmarshal(env.Payload, &e)
		return fmt.Sprintf("%s disabled: %s", e.Feature, e.Reason)
	default:
		return string(data)
	}
}

func printSnapshot(snap domain.PlaybackSnapshot) {
	fmt.Printf("State:    %s\n", snap.State)
	if snap.SessionID == "" {
		return
	}
	fmt.Printf("Session:  %s\n", snap.SessionID)
	fmt.Printf("Movie:    %s (%d)\n", snap.Title, snap.MovieID)
	fmt.Printf("Quality:  %s\n", snap.Quality)
	fmt.Printf("Progress: %.2f%%\n", snap.Progress)
	fmt.Printf("Speed:    %s/s\n", formatBytes(snap.RateBytesPerSec))
	if snap.BufferedFilePath != "" {
		fmt.Printf("File:     %s\n", snap.BufferedFilePath)
	}
	if snap.Error != "" {
		fmt.Printf("Error:    %s\n", snap.Error)
	}
}
