package audio

import (
	"os"
	"strings"
)

// Asset is an opaque handle to input audio (or input text, when a
// speech duration is being estimated before synthesis). Either Path or
// Data is set. Assets are immutable; the pipeline borrows them from the
// caller and never mutates or deletes them.
type Asset struct {
	Path        string
	Data        []byte
	ContentType string
}

// IsText reports whether the asset holds text rather than audio.
func (a *Asset) IsText() bool {
	return strings.HasPrefix(a.ContentType, "text/")
}

// SizeBytes returns the asset's size, or 0 when it cannot be determined.
func (a *Asset) SizeBytes() int64 {
	if a.Data != nil {
		return int64(len(a.Data))
	}
	if a.Path != "" {
		if info, err := os.Stat(a.Path); err == nil {
			return info.Size()
		}
	}
	return 0
}

// Bytes returns the asset content, reading from disk when needed.
func (a *Asset) Bytes() ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}
	return os.ReadFile(a.Path)
}
