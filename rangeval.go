package cloudkit

import "fmt"

// FullRange is the sentinel size meaning "from Start to end of item".
const FullRange uint64 = ^uint64(0)

// Range describes a byte range for ranged downloads. Size == FullRange means
// "from Start to the end of the item".
type Range struct {
	Start uint64
	Size  uint64
}

// IsFull reports whether the range runs to the end of the item.
func (r Range) IsFull() bool {
	return r.Size == FullRange
}

// End returns the exclusive end offset for a bounded range, or ok=false if
// the range is full and the caller must supply the item's total size.
func (r Range) End() (end uint64, ok bool) {
	if r.IsFull() {
		return 0, false
	}
	return r.Start + r.Size, true
}

// Clamp bounds the range to [0, total), matching the spec's "ranges
// exceeding item.size clamp to EOF" rule. A start at or beyond total yields
// a zero-size range.
func (r Range) Clamp(total uint64) Range {
	if r.Start >= total {
		return Range{Start: r.Start, Size: 0}
	}
	if r.IsFull() {
		return Range{Start: r.Start, Size: total - r.Start}
	}
	end := r.Start + r.Size
	if end > total {
		end = total
	}
	return Range{Start: r.Start, Size: end - r.Start}
}

// ContentRangeHeader formats the range as an HTTP Range request header
// value, e.g. "bytes=7-9" or "bytes=7-".
func (r Range) ContentRangeHeader() string {
	if r.IsFull() {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	end, _ := r.End()
	if end == r.Start {
		return fmt.Sprintf("bytes=%d-%d", r.Start, r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, end-1)
}
