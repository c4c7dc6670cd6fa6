package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

const (
	maxTorrentFileBytes = 8 << 20
	// Pieces at the head of the media file fetched before anything else.
	headPieces = 4
)

// AnacrolixEngine implements domain.TorrentEngine on an anacrolix client.
type AnacrolixEngine struct {
	client *torrent.Client
	http   *http.Client
	config *domain.PlaybackConfig
	logger *zap.Logger

	mu      sync.Mutex
	handles map[*torrentHandle]struct{}
}

// NewAnacrolixEngine starts a torrent client listening on config.ListenPort.
func NewAnacrolixEngine(config *domain.PlaybackConfig, logger *zap.Logger) (*AnacrolixEngine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = config.DownloadsDir
	clientConfig.ListenPort = config.ListenPort
	clientConfig.Seed = config.Seed
	return newAnacrolixEngine(clientConfig, config, logger)
}

func newAnacrolixEngine(clientConfig *torrent.ClientConfig, config *domain.PlaybackConfig, logger *zap.Logger) (*AnacrolixEngine, error) {
	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create torrent client: %w", err)
	}

	return &AnacrolixEngine{
		client:  client,
		http:    &http.Client{Timeout: 30 * time.Second},
		config:  config,
		logger:  logger,
		handles: make(map[*torrentHandle]struct{}),
	}, nil
}

// Start adds req.Source to the client with its data under req.SavePath.
// Metadata is fetched in the background; the handle reports zero progress
// until it arrives.
func (e *AnacrolixEngine) Start(ctx context.Context, req domain.TorrentRequest) (domain.TorrentHandle, error) {
	spec, err := resolveSpec(ctx, e.http, req.Source)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.SavePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save path: %w: %v", domain.ErrFileSystemTransient, err)
	}

	store := storage.NewFile(req.SavePath)
	spec.Storage = store

	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: adding torrent: %v", domain.ErrEngineFatal, err)
	}

	hctx, cancel := context.WithCancel(context.Background())
	h := &torrentHandle{
		engine:    e,
		t:         t,
		store:     store,
		savePath:  req.SavePath,
		readahead: e.config.ReadaheadBytes,
		cancel:    cancel,
		logger:    e.logger.With(zap.String("info_hash", t.InfoHash().HexString())),
	}

	e.mu.Lock()
	e.handles[h] = struct{}{}
	e.mu.Unlock()

	go h.awaitInfo(hctx, req.Sequential)

	h.logger.Info("Torrent added",
		zap.String("save_path", req.SavePath),
		zap.Bool("sequential", req.Sequential))

	return h, nil
}

// Close releases every handle, keeping data, and shuts the client down.
func (e *AnacrolixEngine) Close() error {
	e.mu.Lock()
	handles := make([]*torrentHandle, 0, len(e.handles))
	for h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, h.Close())
	}
	errs = append(errs, e.client.Close()...)
	return errors.Join(errs...)
}

func (e *AnacrolixEngine) forget(h *torrentHandle) {
	e.mu.Lock()
	delete(e.handles, h)
	e.mu.Unlock()
}

// resolveSpec turns a magnet URI or a .torrent URL into a torrent spec.
func resolveSpec(ctx context.Context, client *http.Client, source string) (*torrent.TorrentSpec, error) {
	if strings.HasPrefix(source, "magnet:") {
		spec, err := torrent.TorrentSpecFromMagnetUri(source)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid magnet: %v", domain.ErrEngineFatal, err)
		}
		return spec, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid torrent url: %v", domain.ErrEngineFatal, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.AsCancelled(ctx.Err())
		}
		return nil, fmt.Errorf("%w: fetching torrent: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: fetching torrent: status %d", domain.ErrTransientNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: fetching torrent: status %d", domain.ErrEngineFatal, resp.StatusCode)
	}

	mi, err := metainfo.Load(io.LimitReader(resp.Body, maxTorrentFileBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.AsCancelled(ctx.Err())
		}
		return nil, fmt.Errorf("%w: parsing torrent: %v", domain.ErrEngineFatal, err)
	}

	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing torrent: %v", domain.ErrEngineFatal, err)
	}
	return spec, nil
}

type speedSample struct {
	at        time.Time
	bytesRead int64
}

// sampleRate returns the download rate since prev and the new sample.
func sampleRate(prev speedSample, bytesRead int64, now time.Time) (int64, speedSample) {
	next := speedSample{at: now, bytesRead: bytesRead}
	if prev.at.IsZero() {
		return 0, next
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, prev
	}
	delta := bytesRead - prev.bytesRead
	if delta < 0 {
		delta = 0
	}
	return int64(float64(delta) / dt), next
}

type torrentHandle struct {
	engine    *AnacrolixEngine
	t         *torrent.Torrent
	store     storage.ClientImplCloser
	savePath  string
	readahead int64
	cancel    context.CancelFunc
	logger    *zap.Logger

	mu       sync.Mutex
	file     *torrent.File
	reader   torrent.Reader
	released bool
	speed    speedSample

	releaseOnce sync.Once
	releaseErr  error
}

// awaitInfo waits for metadata, then starts fetching the largest file.
func (h *torrentHandle) awaitInfo(ctx context.Context, sequential bool) {
	select {
	case <-ctx.Done():
		return
	case <-h.t.Closed():
		return
	case <-h.t.GotInfo():
	}

	file := largestFile(h.t.Files())
	if file == nil {
		return
	}

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.file = file
	file.Download()
	var reader torrent.Reader
	if sequential {
		reader = file.NewReader()
		reader.SetReadahead(h.readahead)
		reader.SetResponsive()
		h.reader = reader
		end := file.BeginPieceIndex() + headPieces
		if end > file.EndPieceIndex() {
			end = file.EndPieceIndex()
		}
		for i := file.BeginPieceIndex(); i < end; i++ {
			h.t.Piece(i).SetPriority(torrent.PiecePriorityNow)
		}
	}
	h.mu.Unlock()

	h.logger.Info("Torrent metadata received",
		zap.String("file", file.DisplayPath()),
		zap.Int64("length", file.Length()))

	if reader != nil {
		// Reading through the file keeps the readahead window moving forward,
		// so pieces arrive in playback order.
		if _, err := io.Copy(io.Discard, reader); err != nil && ctx.Err() == nil {
			h.logger.Debug("Sequential reader stopped", zap.Error(err))
		}
	}
}

// fileProgress returns completed/length in [0,1] and whether the file is done.
func fileProgress(completed, length int64) (float64, bool) {
	if length <= 0 {
		return 0, false
	}
	if completed >= length {
		return 1, true
	}
	return float64(completed) / float64(length), false
}

func largestFile(files []*torrent.File) *torrent.File {
	var best *torrent.File
	for _, f := range files {
		if best == nil || f.Length() > best.Length() {
			best = f
		}
	}
	return best
}

// Status implements domain.TorrentHandle.
func (h *torrentHandle) Status(ctx context.Context) (domain.TorrentStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.TorrentStatus{}, domain.AsCancelled(err)
	}

	select {
	case <-h.t.Closed():
		return domain.TorrentStatus{}, fmt.Errorf("%w: torrent closed", domain.ErrEngineFatal)
	default:
	}

	stats := h.t.Stats()
	select {
	case <-h.t.GotInfo():
	default:
		return domain.TorrentStatus{Peers: stats.ActivePeers}, nil
	}

	// Progress covers the media file only. Extras shipped in the torrent
	// are never scheduled.
	h.mu.Lock()
	file := h.file
	h.mu.Unlock()
	if file == nil {
		file = largestFile(h.t.Files())
	}
	if file == nil {
		return domain.TorrentStatus{Peers: stats.ActivePeers}, nil
	}

	progress, complete := fileProgress(file.BytesCompleted(), file.Length())

	h.mu.Lock()
	rate, next := sampleRate(h.speed, stats.BytesReadUsefulData.Int64(), time.Now())
	h.speed = next
	h.mu.Unlock()

	return domain.TorrentStatus{
		Progress:        progress,
		RateBytesPerSec: rate,
		IsComplete:      complete,
		Peers:           stats.ActivePeers,
	}, nil
}

// CancelAndPurge implements domain.TorrentHandle.
func (h *torrentHandle) CancelAndPurge() error {
	return h.release(true)
}

// Close implements domain.TorrentHandle.
func (h *torrentHandle) Close() error {
	return h.release(false)
}

func (h *torrentHandle) release(purge bool) error {
	h.releaseOnce.Do(func() {
		h.cancel()

		h.mu.Lock()
		h.released = true
		reader := h.reader
		h.reader = nil
		h.mu.Unlock()

		var errs []error
		if reader != nil {
			errs = append(errs, reader.Close())
		}
		h.t.Drop()
		errs = append(errs, h.store.Close())
		if purge {
			if err := os.RemoveAll(h.savePath); err != nil {
				errs = append(errs, fmt.Errorf("%w: %v", domain.ErrFileSystemTransient, err))
			}
		}
		h.engine.forget(h)
		h.releaseErr = errors.Join(errs...)

		h.logger.Info("Torrent released", zap.Bool("purged", purge))
	})
	return h.releaseErr
}
