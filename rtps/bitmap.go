package rtps

import (
	"math"
	"math/bits"
)

const (
	// BitmapNumBits is the capacity of a BitmapRange and the maximum
	// numBits of a SequenceNumberSet / FragmentNumberSet.
	BitmapNumBits  = 256
	bitmapNumWords = (BitmapNumBits + 31) / 32
)

// BitmapWords is the inline storage of a BitmapRange.
// Bit 31 of word 0 is the base, bit order descends within a word and
// ascends across words, matching the wire layout.
type BitmapWords [bitmapNumWords]uint32

// BitmapRange tracks which of the 256 items starting at base are present.
//
// numBits is not a population count: it is one past the highest offset
// that is set, so Max() == base+numBits-1. All bits at offsets >= numBits
// are zero.
//
// The zero value is an empty range anchored at 0.
type BitmapRange struct {
	base    uint32
	bitmap  BitmapWords
	numBits uint32
}

func NewBitmapRange(base uint32) BitmapRange {
	return BitmapRange{base: base}
}

func (b *BitmapRange) Base() uint32 {
	return b.base
}

// Reset re-anchors the range at base and drops all content.
func (b *BitmapRange) Reset(base uint32) {
	b.base = base
	b.numBits = 0
	b.bitmap = BitmapWords{}
}

// UpdateBase slides the window to newBase, keeping every item that is
// still representable.
func (b *BitmapRange) UpdateBase(newBase uint32) {
	switch {
	case newBase == b.base:
		return
	case newBase > b.base:
		b.shiftLeft(newBase - b.base)
	default:
		b.shiftRight(b.base - newBase)
	}
	b.base = newBase
}

func (b *BitmapRange) Empty() bool {
	return b.numBits == 0
}

// Max returns the highest item in the range. Undefined if Empty.
func (b *BitmapRange) Max() uint32 {
	return b.base + b.numBits - 1
}

// Min returns the lowest item in the range, or the base if Empty.
func (b *BitmapRange) Min() uint32 {
	item := b.base
	for i := uint32(0); i < b.numLongs(); i++ {
		if w := b.bitmap[i]; w != 0 {
			return item + uint32(bits.LeadingZeros32(w))
		}
		item += 32
	}
	return b.base
}

// offset maps item to its bit position, reporting false when item falls
// outside [base, base+255].
func (b *BitmapRange) offset(item uint32) (uint32, bool) {
	if item < b.base {
		return 0, false
	}
	d := item - b.base
	return d, d < BitmapNumBits
}

func (b *BitmapRange) IsSet(item uint32) bool {
	d, ok := b.offset(item)
	if !ok || d >= b.numBits {
		return false
	}
	return b.bitmap[d>>5]&(1<<(31-d&31)) != 0
}

// Add sets item, returning false without modifying the range when item
// is outside [base, base+255].
func (b *BitmapRange) Add(item uint32) bool {
	d, ok := b.offset(item)
	if !ok {
		return false
	}
	b.numBits = max(b.numBits, d+1)
	b.bitmap[d>>5] |= 1 << (31 - d&31)
	return true
}

// AddRange sets every item in [from, to) that falls inside the window.
func (b *BitmapRange) AddRange(from, to uint32) {
	lo := max(uint64(from), uint64(b.base))
	hi := min(uint64(to), uint64(b.base)+BitmapNumBits)
	if lo >= hi {
		return
	}

	offset := uint32(lo - uint64(b.base))
	n := uint32(hi - lo)
	b.numBits = max(b.numBits, offset+n)

	pos := offset >> 5
	offset &= 31
	mask := uint32(math.MaxUint32) >> offset
	inMask := 32 - offset

	for n >= inMask {
		b.bitmap[pos] |= mask
		pos++
		n -= inMask
		mask = math.MaxUint32
		inMask = 32
	}

	if n > 0 {
		b.bitmap[pos] |= mask & (math.MaxUint32 << (inMask - n))
	}
}

// Remove clears item. Items outside [base, Max()] are ignored.
func (b *BitmapRange) Remove(item uint32) {
	if b.Empty() {
		return
	}
	d, ok := b.offset(item)
	if !ok || d >= b.numBits {
		return
	}
	pos := d >> 5
	b.bitmap[pos] &^= 1 << (31 - d&31)

	if d == b.numBits-1 {
		b.calcMaxBitSet(pos+1, 0)
	}
}

// Bitmap exports the wire view of the range. Words at index >= numLongs
// are zero.
func (b *BitmapRange) Bitmap() (numBits uint32, words BitmapWords, numLongs uint32) {
	return b.numBits, b.bitmap, b.numLongs()
}

// SetBitmap loads a wire bitmap. numBits is clamped to BitmapNumBits,
// bits past numBits are masked off and the effective numBits is
// recomputed from the highest bit actually set. words shorter than
// ceil(numBits/32) are zero extended.
func (b *BitmapRange) SetBitmap(numBits uint32, words []uint32) {
	numBits = min(numBits, BitmapNumBits)
	n := (numBits + 31) / 32

	b.bitmap = BitmapWords{}
	copy(b.bitmap[:n], words)
	if tail := numBits & 31; tail != 0 {
		b.bitmap[n-1] &^= math.MaxUint32 >> tail
	}
	b.calcMaxBitSet(n, 0)
}

// ForEach calls visit for every item in the range, in ascending order.
func (b *BitmapRange) ForEach(visit func(item uint32)) {
	item := b.base
	for i := uint32(0); i < b.numLongs(); i++ {
		w := b.bitmap[i]
		for w != 0 {
			off := uint32(bits.LeadingZeros32(w))
			visit(item + off)
			w &^= 1 << (31 - off)
		}
		item += 32
	}
}

func (b *BitmapRange) numLongs() uint32 {
	return (b.numBits + 31) / 32
}

// shiftLeft drops the lowest n items, moving the rest toward the base.
func (b *BitmapRange) shiftLeft(n uint32) {
	if n >= b.numBits {
		b.numBits = 0
		b.bitmap = BitmapWords{}
		return
	}
	b.numBits -= n

	words := int(n >> 5)
	n &= 31
	if n == 0 {
		copy(b.bitmap[:], b.bitmap[words:])
	} else {
		// e.g. 44 bits: one whole word plus 12 bits pulled from the next word
		//   aaaaaaaa bbbbbbbb cccccccc dddddddd
		//   bbbbbccc cccccddd ddddd000 00000000
		overflow := 32 - n
		last := bitmapNumWords - 1
		i := 0
		for src := words; src < last; src++ {
			b.bitmap[i] = b.bitmap[src]<<n | b.bitmap[src+1]>>overflow
			i++
		}
		b.bitmap[last-words] = b.bitmap[last] << n
	}
	clear(b.bitmap[bitmapNumWords-words:])
}

// shiftRight moves every item n slots away from the base. Items pushed
// past the end of the window are lost.
func (b *BitmapRange) shiftRight(n uint32) {
	if n >= BitmapNumBits {
		b.numBits = 0
		b.bitmap = BitmapWords{}
		return
	}
	if b.numBits == 0 {
		return
	}

	newNumBits := b.numBits + n
	findNewMax := newNumBits > BitmapNumBits

	words := int(n >> 5)
	n &= 31
	if n == 0 {
		copy(b.bitmap[words:], b.bitmap[:bitmapNumWords-words])
	} else {
		// e.g. 44 bits: walk backwards pulling 12 bits from the previous word
		//   aaaaaaaa bbbbbbbb cccccccc dddddddd
		//   00000000 000aaaaa aaabbbbb bbbccccc
		overflow := 32 - n
		i := bitmapNumWords - 1
		for src := bitmapNumWords - 1 - words; src > 0; src-- {
			b.bitmap[i] = b.bitmap[src]>>n | b.bitmap[src-1]<<overflow
			i--
		}
		b.bitmap[words] = b.bitmap[0] >> n
	}
	clear(b.bitmap[:words])

	b.numBits = newNumBits
	if findNewMax {
		b.calcMaxBitSet(bitmapNumWords, uint32(words))
	}
}

// calcMaxBitSet recomputes numBits by scanning words [minIndex, start)
// downward for the highest set offset.
func (b *BitmapRange) calcMaxBitSet(start, minIndex uint32) {
	b.numBits = 0
	for i := int(start) - 1; i >= int(minIndex); i-- {
		if w := b.bitmap[i]; w != 0 {
			// lowest set bit of the word is its highest offset
			b.numBits = uint32(i)<<5 + 32 - uint32(bits.TrailingZeros32(w))
			return
		}
	}
}
