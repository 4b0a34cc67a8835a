// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Image processing constants
const (
	// DefaultMaxImageSize is the longest side, in pixels, of images handed
	// to the face library
	DefaultMaxImageSize = 1024

	// JPEGQuality is the quality used when re-encoding normalised images
	JPEGQuality = 90
)

// HTTP constants
const (
	// MaxUploadSize is the largest multipart body accepted by the match endpoint
	MaxUploadSize = 32 << 20

	// MaxFetchSize is the largest resource the fetch proxy reads
	MaxFetchSize = 32 << 20

	// MaxMessageSize is the largest proxy message body
	MaxMessageSize = 64 << 10

	// ServerReadTimeout bounds reading a request
	ServerReadTimeout = 30 * time.Second

	// ServerWriteTimeout is long because a cloak request waits for model
	// loading on first use
	ServerWriteTimeout = 5 * time.Minute

	// ServerIdleTimeout closes idle keep-alive connections
	ServerIdleTimeout = 60 * time.Second
)
