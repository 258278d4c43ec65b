package stream

import "errors"

var (
	// ErrDecoderUnavailable means the external decoder binary could not
	// be located or launched. Streaming stays unavailable until the
	// configuration is corrected; the host process keeps running.
	ErrDecoderUnavailable = errors.New("decoder binary unavailable")

	// ErrInvalidSource means no usable source URL was supplied.
	ErrInvalidSource = errors.New("invalid or missing source URL")
)
