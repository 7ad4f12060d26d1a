package ring

// Interval is a half-open arc of the ring, exclusive of Start and inclusive
// of End. It wraps past the top of the hash space when Start > End and
// covers the whole ring when Start == End.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether hash lies on the arc
func (i Interval) Contains(hash string) bool {
	return inArc(i.Start, i.End, hash)
}

// IsFull reports whether the arc covers the whole ring
func (i Interval) IsFull() bool {
	return i.Start == i.End
}

// HashRange is the portion of the ring a node is responsible for.
// (Start, End] is the primary range the node coordinates writes for,
// (ReadStart, End] is the wider window it may serve reads from.
type HashRange struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	ReadStart string `json:"read_start"`
}

// Primary returns the write arc
func (r HashRange) Primary() Interval {
	return Interval{Start: r.Start, End: r.End}
}

// Readable returns the read arc
func (r HashRange) Readable() Interval {
	return Interval{Start: r.ReadStart, End: r.End}
}

// IsInRange reports whether the node coordinates writes for hash
func (r HashRange) IsInRange(hash string) bool {
	return inArc(r.Start, r.End, hash)
}

// IsInReadRange reports whether the node may serve reads for hash
func (r HashRange) IsInReadRange(hash string) bool {
	return inArc(r.ReadStart, r.End, hash)
}

func inArc(start, end, hash string) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return hash > start && hash <= end
	default:
		return hash > start || hash <= end
	}
}
