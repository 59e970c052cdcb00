// Package imagefetch downloads, decodes and normalizes images and places
// them on the system clipboard as PNG. Remote downloads report progress
// events on a progress.Bus under a caller-supplied request ID and can be
// cancelled by that ID.
package imagefetch

import "time"

// Config bounds what the fetcher will accept.
type Config struct {
	// MaxFileSize caps the encoded size of a download, file or base64
	// payload in bytes.
	MaxFileSize int64
	// DownloadTimeout bounds a whole download, headers and body.
	DownloadTimeout time.Duration
	// ConnectTimeout bounds dialing the remote host.
	ConnectTimeout time.Duration
	MaxRedirects   int
	// AllowPrivateNetwork permits loopback, link-local and private hosts.
	AllowPrivateNetwork bool
	// MaxDecodedPixels rejects images whose header announces more pixels.
	MaxDecodedPixels int64
	// MaxDimension and TargetPixels bound the image written to the
	// clipboard; larger images are downscaled.
	MaxDimension int
	TargetPixels int64
	// ClipboardRetries is the number of clipboard write attempts.
	ClipboardRetries    int
	ClipboardRetryDelay time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:         50 << 20,
		DownloadTimeout:     30 * time.Second,
		ConnectTimeout:      8 * time.Second,
		MaxRedirects:        5,
		AllowPrivateNetwork: false,
		MaxDecodedPixels:    40_000_000,
		MaxDimension:        2560,
		TargetPixels:        5_000_000,
		ClipboardRetries:    3,
		ClipboardRetryDelay: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = d.DownloadTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = d.MaxRedirects
	}
	if c.MaxDecodedPixels <= 0 {
		c.MaxDecodedPixels = d.MaxDecodedPixels
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = d.MaxDimension
	}
	if c.TargetPixels <= 0 {
		c.TargetPixels = d.TargetPixels
	}
	if c.ClipboardRetries <= 0 {
		c.ClipboardRetries = d.ClipboardRetries
	}
	if c.ClipboardRetryDelay <= 0 {
		c.ClipboardRetryDelay = d.ClipboardRetryDelay
	}
	return c
}
