package rtps

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SequenceNumber is a 64-bit sequence number split into a signed high
// word and an unsigned low word, as it appears on the wire.
type SequenceNumber struct {
	High int32
	Low  uint32
}

var (
	// SeqNumUnknown orders before every valid sequence number.
	SeqNumUnknown = SequenceNumber{High: -1, Low: 0}
)

func NewSequenceNumber(high int32, low uint32) SequenceNumber {
	return SequenceNumber{High: high, Low: low}
}

func SeqNumFromUint64(v uint64) SequenceNumber {
	return SequenceNumber{
		High: int32(v >> 32),
		Low:  uint32(v),
	}
}

func (s SequenceNumber) Uint64() uint64 {
	return uint64(uint32(s.High))<<32 | uint64(s.Low)
}

func (s SequenceNumber) Unknown() bool {
	return s == SeqNumUnknown
}

// Increment bumps s in place and returns the new value.
func (s *SequenceNumber) Increment() SequenceNumber {
	s.Low++
	if s.Low == 0 {
		s.High++
	}
	return *s
}

// AddAssign adds a non-negative delta to s in place.
// A negative delta is a caller bug and panics.
func (s *SequenceNumber) AddAssign(delta int32) {
	if delta < 0 {
		panic(fmt.Sprintf("rtps: negative sequence number increment %d", delta))
	}
	prev := s.Low
	s.Low += uint32(delta)
	if s.Low < prev {
		s.High++
	}
}

func (s SequenceNumber) Add(delta uint32) SequenceNumber {
	res := SequenceNumber{High: s.High, Low: s.Low + delta}
	if res.Low < s.Low {
		res.High++
	}
	return res
}

func (s SequenceNumber) AddSeqNum(o SequenceNumber) SequenceNumber {
	res := SequenceNumber{High: s.High + o.High, Low: s.Low + o.Low}
	if res.Low < s.Low {
		res.High++
	}
	return res
}

func (s SequenceNumber) Sub(delta uint32) SequenceNumber {
	res := SequenceNumber{High: s.High, Low: s.Low - delta}
	if delta > s.Low {
		res.High--
	}
	return res
}

// SubSeqNum returns s - o. The difference of sequence numbers is only
// defined for s >= o; anything else panics.
func (s SequenceNumber) SubSeqNum(o SequenceNumber) SequenceNumber {
	if s.Less(o) {
		panic(fmt.Sprintf("rtps: sequence number difference %v - %v is negative", s, o))
	}
	res := SequenceNumber{High: s.High - o.High, Low: s.Low - o.Low}
	if s.Low < o.Low {
		res.High--
	}
	return res
}

// SeqNumDiff returns the low word of a - b.
// Only meaningful when the difference is known to fit in 32 bits.
func SeqNumDiff(a, b SequenceNumber) uint32 {
	return a.SubSeqNum(b).Low
}

// Compare orders lexicographically on (High, Low).
func (s SequenceNumber) Compare(o SequenceNumber) int {
	switch {
	case s.High < o.High:
		return -1
	case s.High > o.High:
		return 1
	case s.Low < o.Low:
		return -1
	case s.Low > o.Low:
		return 1
	}
	return 0
}

func (s SequenceNumber) Less(o SequenceNumber) bool {
	return s.Compare(o) < 0
}

func (s SequenceNumber) LessEq(o SequenceNumber) bool {
	return s.Compare(o) <= 0
}

// SortSeqNum reports whether a precedes b.
func SortSeqNum(a, b SequenceNumber) bool {
	return a.Less(b)
}

func (s SequenceNumber) String() string {
	if s.Unknown() {
		return "unknown"
	}
	return fmt.Sprintf("%d", s.Uint64())
}

func (s SequenceNumber) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 8)
	order.PutUint32(b[0:], uint32(s.High))
	order.PutUint32(b[4:], s.Low)
	return b
}

func SeqNumFromBytes(order binary.ByteOrder, b []byte) (SequenceNumber, error) {
	if len(b) < 8 {
		return SeqNumUnknown, io.EOF
	}
	return seqNumAt(order, b), nil
}

// seqNumAt decodes the sequence number at the start of b, which must hold
// at least 8 bytes.
func seqNumAt(order binary.ByteOrder, b []byte) SequenceNumber {
	return SequenceNumber{
		High: int32(order.Uint32(b[0:])),
		Low:  order.Uint32(b[4:]),
	}
}
