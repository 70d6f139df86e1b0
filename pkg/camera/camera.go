// Package camera captures still frames from a local video device and encodes
// them as JPEG thumbnails small enough to ship inline over the conversation
// session. Capture failures leave the agent in a voice-only degraded mode, so
// every error here is reportable rather than fatal.
package camera

import (
	"context"
	"encoding/base64"
)

// Default thumbnail bounds. Frames larger than this are scaled down with the
// aspect ratio preserved before JPEG encoding.
const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
)

// Frame is one encoded still image ready to send.
type Frame struct {
	// MIMEType is the encoded format, always "image/jpeg" for this package.
	MIMEType string
	// Data is the base64-encoded JPEG payload.
	Data string
}

// Source produces frames on demand.
type Source interface {
	// Capture grabs and encodes one frame. It returns an error when the
	// device yields no image; callers should treat that as transient.
	Capture(ctx context.Context) (Frame, error)
	// Close releases the underlying device.
	Close() error
}

func encodeFrame(jpeg []byte) Frame {
	return Frame{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(jpeg),
	}
}

// FitWithin scales (w, h) down to fit inside (maxW, maxH) while preserving
// the aspect ratio. Dimensions already inside the bounds are unchanged.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Scale by the tighter of the two ratios using integer math.
	if w*maxH >= h*maxW {
		scaledH := h * maxW / w
		if scaledH < 1 {
			scaledH = 1
		}
		return maxW, scaledH
	}
	scaledW := w * maxH / h
	if scaledW < 1 {
		scaledW = 1
	}
	return scaledW, maxH
}
