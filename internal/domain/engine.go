package domain

import "context"

// TorrentRequest describes a transfer to start.
type TorrentRequest struct {
	Source     string // magnet URI or .torrent URL
	SavePath   string
	Sequential bool
}

// TorrentStatus is a point-in-time view of a transfer.
type TorrentStatus struct {
	Progress        float64 // 0..1
	RateBytesPerSec int64
	IsComplete      bool
	Peers           int
}

// TorrentHandle controls a running transfer.
//
// Status returns an error wrapping ErrEngineFatal when the transfer can no
// longer make progress. Any other error is considered transient.
type TorrentHandle interface {
	Status(ctx context.Context) (TorrentStatus, error)
	// CancelAndPurge stops the transfer and deletes its data.
	CancelAndPurge() error
	// Close stops the transfer and keeps the data on disk.
	Close() error
}

// TorrentEngine starts transfers.
type TorrentEngine interface {
	Start(ctx context.Context, req TorrentRequest) (TorrentHandle, error)
}
