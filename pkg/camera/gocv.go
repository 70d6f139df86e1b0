package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Config controls device selection and thumbnail size.
type Config struct {
	// DevicePath is an explicit V4L2 device path such as /dev/video0. When
	// empty, Probe falls back to capture index 0.
	DevicePath string
	// MaxWidth and MaxHeight bound the encoded thumbnail. Zero values use
	// the package defaults.
	MaxWidth  int
	MaxHeight int
}

func (c Config) maxBounds() (int, int) {
	w, h := c.MaxWidth, c.MaxHeight
	if w <= 0 {
		w = DefaultMaxWidth
	}
	if h <= 0 {
		h = DefaultMaxHeight
	}
	return w, h
}

// VideoSource captures frames from a V4L2 device through OpenCV.
type VideoSource struct {
	mu   sync.Mutex
	cap  *gocv.VideoCapture
	maxW int
	maxH int
}

var _ Source = (*VideoSource)(nil)

// Probe opens the configured device, preferring the explicit device path and
// falling back to capture index 0. A nil source with a non-nil error means no
// camera is available and the caller should run voice-only.
func Probe(cfg Config) (*VideoSource, error) {
	maxW, maxH := cfg.maxBounds()

	if cfg.DevicePath != "" {
		cap, err := gocv.OpenVideoCapture(cfg.DevicePath)
		if err == nil && cap.IsOpened() {
			configureCapture(cap)
			return &VideoSource{cap: cap, maxW: maxW, maxH: maxH}, nil
		}
		if cap != nil {
			cap.Close()
		}
		slog.Warn("camera: device path unavailable, falling back to index 0",
			"device", cfg.DevicePath, "error", err)
	}

	cap, err := gocv.OpenVideoCapture(0)
	if err != nil {
		return nil, fmt.Errorf("camera: open capture device: %w", err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("camera: no capture device found")
	}
	configureCapture(cap)
	return &VideoSource{cap: cap, maxW: maxW, maxH: maxH}, nil
}

func configureCapture(cap *gocv.VideoCapture) {
	// MJPG keeps USB bandwidth low at full sensor resolution. Devices that
	// reject the codec silently keep their default.
	cap.Set(gocv.VideoCaptureFOURCC, cap.ToCodec("MJPG"))
}

// Capture implements Source.
func (v *VideoSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := v.cap.Read(&mat); !ok || mat.Empty() {
		return Frame{}, fmt.Errorf("camera: device returned no frame")
	}

	bgr, converted, err := toBGR(mat)
	if err != nil {
		return Frame{}, err
	}
	// Only a conversion allocates a new Mat; closing an unconverted result
	// would free the captured frame twice.
	if converted {
		defer bgr.Close()
	}

	w, h := FitWithin(bgr.Cols(), bgr.Rows(), v.maxW, v.maxH)
	if w != bgr.Cols() || h != bgr.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(bgr, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		return encodeJPEG(resized)
	}
	return encodeJPEG(bgr)
}

// toBGR normalizes grayscale and BGRA frames to 3-channel BGR so the JPEG
// encoder always sees the same layout. converted reports whether a new Mat
// was allocated; when false the result shares the input's backing storage
// and must not be closed separately.
func toBGR(mat gocv.Mat) (out gocv.Mat, converted bool, err error) {
	switch mat.Channels() {
	case 3:
		return mat, false, nil
	case 1:
		out = gocv.NewMat()
		gocv.CvtColor(mat, &out, gocv.ColorGrayToBGR)
		return out, true, nil
	case 4:
		out = gocv.NewMat()
		gocv.CvtColor(mat, &out, gocv.ColorBGRAToBGR)
		return out, true, nil
	default:
		return gocv.Mat{}, false, fmt.Errorf("camera: unsupported channel count %d", mat.Channels())
	}
}

func encodeJPEG(mat gocv.Mat) (Frame, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return Frame{}, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	defer buf.Close()
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return encodeFrame(data), nil
}

// Close implements Source.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cap == nil {
		return nil
	}
	err := v.cap.Close()
	v.cap = nil
	if err != nil {
		return fmt.Errorf("camera: close capture device: %w", err)
	}
	return nil
}
