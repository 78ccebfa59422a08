package stats

// Sequence is a Roller that replays fixed Intn results in order.
// Values are clamped into [0, n). Once exhausted it returns 0.
// It exists for reproducing a specific turn, mostly in tests.
type Sequence struct {
	values []int
	next   int
}

// NewSequence builds a Sequence from raw Intn results.
func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

// Intn returns the next scripted value.
func (s *Sequence) Intn(n int) int {
	if s.next >= len(s.values) {
		return 0
	}
	v := s.values[s.next]
	s.next++
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// Remaining reports how many scripted values were not consumed.
func (s *Sequence) Remaining() int {
	return len(s.values) - s.next
}
