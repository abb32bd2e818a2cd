package cloudkit

import "testing"

func TestRangeClampToEOF(t *testing.T) {
	r := Range{Start: 7, Size: 100}
	clamped := r.Clamp(10)
	if clamped.Start != 7 || clamped.Size != 3 {
		t.Fatalf("expected clamp to 3 bytes, got %+v", clamped)
	}
}

func TestRangeClampAtOrBeyondSizeIsEmpty(t *testing.T) {
	r := Range{Start: 10, Size: 5}
	clamped := r.Clamp(10)
	if clamped.Size != 0 {
		t.Fatalf("expected zero-size clamp, got %+v", clamped)
	}
}

func TestRangeFullOnZeroByteItem(t *testing.T) {
	r := Range{Start: 0, Size: FullRange}
	clamped := r.Clamp(0)
	if clamped.Size != 0 {
		t.Fatalf("expected zero-size clamp for empty item, got %+v", clamped)
	}
}

func TestRangeContentRangeHeader(t *testing.T) {
	if got := (Range{Start: 0, Size: FullRange}).ContentRangeHeader(); got != "bytes=0-" {
		t.Fatalf("unexpected header: %s", got)
	}
	if got := (Range{Start: 7, Size: 3}).ContentRangeHeader(); got != "bytes=7-9" {
		t.Fatalf("unexpected header: %s", got)
	}
}
