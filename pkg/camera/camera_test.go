package camera_test

import (
	"testing"

	"github.com/tsubasakt/kaiwa/pkg/camera"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name           string
		w, h           int
		maxW, maxH     int
		wantW, wantH   int
	}{
		{name: "already fits", w: 640, h: 480, maxW: 1024, maxH: 1024, wantW: 640, wantH: 480},
		{name: "exact bounds", w: 1024, h: 1024, maxW: 1024, maxH: 1024, wantW: 1024, wantH: 1024},
		{name: "wide frame scales by width", w: 1920, h: 1080, maxW: 1024, maxH: 1024, wantW: 1024, wantH: 576},
		{name: "tall frame scales by height", w: 1080, h: 1920, maxW: 1024, maxH: 1024, wantW: 576, wantH: 1024},
		{name: "square oversize", w: 2048, h: 2048, maxW: 1024, maxH: 1024, wantW: 1024, wantH: 1024},
		{name: "extreme aspect clamps to one pixel", w: 10000, h: 1, maxW: 1024, maxH: 1024, wantW: 1024, wantH: 1},
		{name: "zero dimensions pass through", w: 0, h: 0, maxW: 1024, maxH: 1024, wantW: 0, wantH: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := camera.FitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Errorf("FitWithin(%d, %d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
			}
		})
	}
}
