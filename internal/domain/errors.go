package domain

import (
	"context"
	"errors"
)

// Failure categories shared by the catalog and playback components.
var (
	ErrTransientNetwork    = errors.New("transient network error")
	ErrCancelled           = errors.New("operation cancelled")
	ErrEngineFatal         = errors.New("torrent engine failure")
	ErrFileSystemTransient = errors.New("transient file system error")
	ErrCoverUnavailable    = errors.New("cover image unavailable")

	ErrQueryMismatch     = errors.New("query does not match the active browsing mode")
	ErrNoTorrentVariants = errors.New("movie has no torrent variants")
	ErrFeatureDisabled   = errors.New("feature disabled after an unexpected failure")
	ErrNotFound          = errors.New("not found")
)

// AsCancelled folds context errors into ErrCancelled. Other errors are returned unchanged.
func AsCancelled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return errors.Join(ErrCancelled, err)
	}
	return err
}

// IsExpected reports whether err belongs to one of the known failure categories.
func IsExpected(err error) bool {
	for _, target := range []error{
		ErrTransientNetwork,
		ErrCancelled,
		ErrEngineFatal,
		ErrFileSystemTransient,
		ErrCoverUnavailable,
		ErrQueryMismatch,
		ErrNoTorrentVariants,
		ErrFeatureDisabled,
		ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
