package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garycarlyle/TVShow/api"
	"github.com/garycarlyle/TVShow/api/handlers"
	"github.com/garycarlyle/TVShow/internal/app"
	"github.com/garycarlyle/TVShow/internal/domain"
	"github.com/garycarlyle/TVShow/internal/infrastructure"
	"github.com/garycarlyle/TVShow/internal/metrics"
	"github.com/garycarlyle/TVShow/pkg/logger"
)

var version = "dev"

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the foreground instead of detaching")
	configPath = flag.String("config", "", "Config file (default: search ./configs, ~/.config/tvshow, /etc/tvshow)")
)

func main() {
	flag.Parse()

	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary in server mode, detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	base, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.WithErrorLog(base, multiLog)
	defer log.Sync()

	log.Info("Starting TVShow server",
		zap.String("version", version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("catalog", config.Catalog.BaseURL),
		zap.String("downloads_dir", config.Playback.DownloadsDir))

	repo, err := infrastructure.NewSQLitePlaybackRepository(config.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	if n, err := repo.MarkInterrupted(); err != nil {
		log.Warn("Failed to mark interrupted sessions", zap.Error(err))
	} else if n > 0 {
		log.Info("Marked interrupted sessions as failed", zap.Int64("count", n))
	}

	catalog := infrastructure.NewYTSClient(
		&config.Catalog,
		&http.Client{Timeout: config.Catalog.RequestTimeout},
		log.Named("yts"),
	)

	engine, err := infrastructure.NewAnacrolixEngine(&config.Playback, log.Named("torrent"))
	if err != nil {
		return err
	}
	defer engine.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	orch := app.NewOrchestrator(
		catalog,
		engine,
		infrastructure.FindPlayableFile,
		config,
		log,
		app.NewHistoryRecorder(repo, log.Named("history")),
		app.NewEventJournal(multiLog),
		metrics.Observer{},
		infrastructure.NewNotificationService(&config.Notification, log.Named("notify")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		orch.Run(ctx)
	}()

	// First page, so the catalog is populated when a client connects
	go func() {
		if _, err := orch.LoadNext(ctx); err != nil {
			log.Warn("Initial catalog load failed", zap.Error(err))
		}
	}()

	handlers.Version = version
	router := api.SetupRouter(orch, repo, multiLog.GetLogsDir(), log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	orch.Shutdown()
	cancel()
	<-runDone

	log.Info("Server exited")
	return nil
}

// createDirectories creates the data directories concurrently
func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Catalog.CoversDir,
		config.Catalog.PostersDir,
		config.Playback.DownloadsDir,
		config.Logging.LogsDir,
		filepath.Dir(config.Storage.DatabasePath),
	}

	var g errgroup.Group
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		dir := dir
		g.Go(func() error {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
			return nil
		})
	}
	return g.Wait()
}
