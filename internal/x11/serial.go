package x11

import "sync"

// serialExtender widens the 16-bit sequence numbers on the wire into a
// monotonic 64-bit serial. Sequence numbers are assumed to move less than
// half the 16-bit range between two observations.
type serialExtender struct {
	mu   sync.Mutex
	last uint64
}

// extend returns the 64-bit serial for seq and records it as the most
// recent one when it moves forward.
func (s *serialExtender) extend(seq uint16) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := seq - uint16(s.last)
	var serial uint64
	if delta < 0x8000 {
		serial = s.last + uint64(delta)
		s.last = serial
	} else {
		back := uint64(0x10000 - uint32(delta))
		if back > s.last {
			return 0
		}
		serial = s.last - back
	}
	return serial
}
