package camera

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestToBGR_ThreeChannelSharesBacking(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer mat.Close()

	out, converted, err := toBGR(mat)
	if err != nil {
		t.Fatalf("toBGR: %v", err)
	}
	if converted {
		t.Fatal("3-channel input reported as converted")
	}
	// The result must wrap the same underlying frame; closing it as well as
	// the input would free that frame twice.
	if out.Ptr() != mat.Ptr() {
		t.Error("expected the input mat back for 3-channel frames")
	}
}

func TestToBGR_GrayscaleAllocates(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	defer mat.Close()

	out, converted, err := toBGR(mat)
	if err != nil {
		t.Fatalf("toBGR: %v", err)
	}
	if !converted {
		t.Fatal("grayscale input should allocate a converted mat")
	}
	defer out.Close()

	if out.Ptr() == mat.Ptr() {
		t.Error("converted mat must not share the input's backing storage")
	}
	if out.Channels() != 3 {
		t.Errorf("channels = %d; want 3", out.Channels())
	}
}

func TestToBGR_BGRAAllocates(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC4)
	defer mat.Close()

	out, converted, err := toBGR(mat)
	if err != nil {
		t.Fatalf("toBGR: %v", err)
	}
	if !converted {
		t.Fatal("BGRA input should allocate a converted mat")
	}
	defer out.Close()

	if out.Channels() != 3 {
		t.Errorf("channels = %d; want 3", out.Channels())
	}
}

func TestToBGR_UnsupportedChannelCount(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC2)
	defer mat.Close()

	if _, converted, err := toBGR(mat); err == nil || converted {
		t.Errorf("toBGR on 2-channel mat = (%v, %v); want error", converted, err)
	}
}
