package rtps

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SeqNumSet is the SequenceNumberSet submessage element:
//
//	bitmapBase : SequenceNumber (8 bytes)
//	numBits    : uint32
//	bitmap     : ceil(numBits/32) x uint32, MSB first
//
// The bitmap holds offsets from bitmapBase rather than the low word of
// each sequence number, so a set whose base sits just below a 2^32
// boundary still covers all 256 slots.
type SeqNumSet struct {
	bitmapBase SequenceNumber // first sequence number in the set
	set        BitmapRange
}

func NewSeqNumSet(base SequenceNumber) *SeqNumSet {
	return &SeqNumSet{bitmapBase: base}
}

func (sns *SeqNumSet) Base() SequenceNumber {
	return sns.bitmapBase
}

func (sns *SeqNumSet) offset(sn SequenceNumber) (uint32, bool) {
	if sn.Less(sns.bitmapBase) {
		return 0, false
	}
	d := sn.SubSeqNum(sns.bitmapBase)
	if d.High != 0 || d.Low >= BitmapNumBits {
		return 0, false
	}
	return d.Low, true
}

// clampOffset maps sn to its offset from base, clamped to
// [0, BitmapNumBits].
func clampOffset(base, sn SequenceNumber) uint32 {
	if sn.LessEq(base) {
		return 0
	}
	d := sn.SubSeqNum(base)
	if d.High != 0 || d.Low > BitmapNumBits {
		return BitmapNumBits
	}
	return d.Low
}

func (sns *SeqNumSet) Add(sn SequenceNumber) bool {
	off, ok := sns.offset(sn)
	if !ok {
		return false
	}
	return sns.set.Add(off)
}

// AddRange adds every sequence number in [from, to) that fits the set.
func (sns *SeqNumSet) AddRange(from, to SequenceNumber) {
	sns.set.AddRange(clampOffset(sns.bitmapBase, from), clampOffset(sns.bitmapBase, to))
}

func (sns *SeqNumSet) Remove(sn SequenceNumber) {
	if off, ok := sns.offset(sn); ok {
		sns.set.Remove(off)
	}
}

func (sns *SeqNumSet) IsSet(sn SequenceNumber) bool {
	off, ok := sns.offset(sn)
	return ok && sns.set.IsSet(off)
}

func (sns *SeqNumSet) Empty() bool {
	return sns.set.Empty()
}

// Max returns the highest member. Undefined if Empty.
func (sns *SeqNumSet) Max() SequenceNumber {
	return sns.bitmapBase.Add(sns.set.Max())
}

// Min returns the lowest member, or the base if Empty.
func (sns *SeqNumSet) Min() SequenceNumber {
	return sns.bitmapBase.Add(sns.set.Min())
}

func (sns *SeqNumSet) ForEach(visit func(sn SequenceNumber)) {
	sns.set.ForEach(func(off uint32) {
		visit(sns.bitmapBase.Add(off))
	})
}

func (sns *SeqNumSet) NumBits() uint32 {
	return sns.set.numBits
}

func (sns *SeqNumSet) BitMapWords() int {
	return int(sns.set.numLongs())
}

// Valid applies the SequenceNumberSet rule bitmapBase >= 1.
// numBits can never exceed BitmapNumBits once decoded.
func (sns *SeqNumSet) Valid() bool {
	return !sns.bitmapBase.Less(SequenceNumber{High: 0, Low: 1})
}

func (sns *SeqNumSet) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 8, 12+4*bitmapNumWords)
	copy(b, sns.bitmapBase.Bytes(order))
	return appendBitmap(order, b, &sns.set)
}

// SeqNumSetFromBytes decodes a SequenceNumberSet and reports how many
// bytes of b it consumed.
func SeqNumSetFromBytes(order binary.ByteOrder, b []byte) (*SeqNumSet, int, error) {
	base, err := SeqNumFromBytes(order, b)
	if err != nil {
		return nil, 0, fmt.Errorf("seqnumset base: %w", err)
	}
	sns := NewSeqNumSet(base)
	n, err := readBitmap(order, b[8:], &sns.set)
	if err != nil {
		return nil, 0, fmt.Errorf("seqnumset %v: %w", base, err)
	}
	return sns, 8 + n, nil
}

// FragNumSet is the FragmentNumberSet submessage element. Fragment
// numbers are 32 bits, so the base is used directly as the range base.
type FragNumSet struct {
	BitmapRange
}

func NewFragNumSet(base uint32) *FragNumSet {
	return &FragNumSet{NewBitmapRange(base)}
}

// Valid applies the FragmentNumberSet rule bitmapBase >= 1.
func (fns *FragNumSet) Valid() bool {
	return fns.base >= 1
}

func (fns *FragNumSet) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 4, 8+4*bitmapNumWords)
	order.PutUint32(b, fns.base)
	return appendBitmap(order, b, &fns.BitmapRange)
}

func FragNumSetFromBytes(order binary.ByteOrder, b []byte) (*FragNumSet, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("fragnumset base: %w", io.EOF)
	}
	fns := NewFragNumSet(order.Uint32(b))
	n, err := readBitmap(order, b[4:], &fns.BitmapRange)
	if err != nil {
		return nil, 0, fmt.Errorf("fragnumset %d: %w", fns.base, err)
	}
	return fns, 4 + n, nil
}

// appendBitmap writes numBits followed by the used bitmap words.
func appendBitmap(order binary.ByteOrder, b []byte, rng *BitmapRange) []byte {
	numBits, words, numLongs := rng.Bitmap()
	b = appendUint32(order, b, numBits)
	for _, w := range words[:numLongs] {
		b = appendUint32(order, b, w)
	}
	return b
}

func appendUint32(order binary.ByteOrder, b []byte, v uint32) []byte {
	var buf [4]byte
	order.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

// readBitmap loads numBits and its bitmap words into rng. A declared
// numBits past BitmapNumBits is clamped for the range, but all of the
// declared words must be present and are consumed.
func readBitmap(order binary.ByteOrder, b []byte, rng *BitmapRange) (int, error) {
	if len(b) < 4 {
		return 0, io.EOF
	}
	declared := order.Uint32(b)
	size := 4 + 4*((uint64(declared)+31)/32)
	if uint64(len(b)) < size {
		return 0, io.EOF
	}

	numBits := declared
	if numBits > BitmapNumBits {
		logger().Warn("clamping bitmap length from peer",
			"num_bits", declared,
			"max", BitmapNumBits,
		)
		numBits = BitmapNumBits
	}

	nwords := int(numBits+31) / 32
	var words BitmapWords
	for i := 0; i < nwords; i++ {
		words[i] = order.Uint32(b[4+4*i:])
	}
	rng.SetBitmap(numBits, words[:nwords])
	return int(size), nil
}
