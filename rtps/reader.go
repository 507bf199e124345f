package rtps

import (
	"slices"
	"sync"
)

// Reader tracks what has been received from one matched remote writer
// and answers its heartbeats.
//
// Every sequence number below lowMark has been received or declared
// irrelevant. received holds out-of-order arrivals as offsets from
// lowMark, so offset 0 is always clear. Ranges declared irrelevant by a
// Gap that do not fit the window yet wait in irrelevant.
type Reader struct {
	mu           sync.Mutex
	reliable     bool
	writerGUID   GUID
	readerEID    EntityID
	lowMark      SequenceNumber
	maxRxSeqNum  SequenceNumber
	received     BitmapRange
	irrelevant   []seqRange
	ackNackCount uint32
}

// seqRange is the half-open interval [from, to).
type seqRange struct {
	from, to SequenceNumber
}

func NewReader(writerGUID GUID, readerEID EntityID, reliable bool) *Reader {
	return &Reader{
		reliable:    reliable,
		writerGUID:  writerGUID,
		readerEID:   readerEID,
		lowMark:     NewSequenceNumber(0, 1),
		maxRxSeqNum: SeqNumUnknown,
	}
}

func (r *Reader) WriterGUID() GUID {
	return r.writerGUID
}

// LowMark returns the first sequence number not yet received.
func (r *Reader) LowMark() SequenceNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lowMark
}

// MaxReceived returns the highest sequence number received with data,
// or SeqNumUnknown.
func (r *Reader) MaxReceived() SequenceNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxRxSeqNum
}

// Receive records the arrival of sn. It returns false for duplicates,
// for anything below the low mark and for anything past the 256 slot
// window, which the writer will have to resend.
func (r *Reader) Receive(sn SequenceNumber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.mark(sn) {
		return false
	}
	if r.maxRxSeqNum.Less(sn) {
		r.maxRxSeqNum = sn
	}
	return true
}

// ApplyGap marks [GapStart, GapList.Base()) and the members of GapList
// as irrelevant. Parts beyond the reception window are kept until the
// low mark gets close enough to apply them. A nil GapList marks nothing.
func (r *Reader) ApplyGap(g *Gap) {
	if g.GapList == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.addIrrelevant(g.GapStart, g.GapList.Base())
	g.GapList.ForEach(func(sn SequenceNumber) {
		r.addIrrelevant(sn, sn.Add(1))
	})
	r.advance()
}

// AckNack builds the reply to hb: everything below hb.FirstSN is given
// up on, then every missing sequence number up to hb.LastSN (bounded by
// the window) is requested. Best-effort readers never reply.
func (r *Reader) AckNack(hb *Heartbeat) *AckNack {
	if !r.reliable {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropBelow(hb.FirstSN)
	r.advance()

	set := NewSeqNumSet(r.lowMark)
	if r.lowMark.LessEq(hb.LastSN) {
		set.AddRange(r.lowMark, hb.LastSN.Add(1))
		r.received.ForEach(func(off uint32) {
			set.Remove(r.lowMark.Add(off))
		})
	}
	r.ackNackCount++

	logger().Debug("acknack for heartbeat",
		"writer", r.writerGUID.String(),
		"first", hb.FirstSN.String(),
		"last", hb.LastSN.String(),
		"low_mark", r.lowMark.String(),
		"num_bits", set.NumBits(),
	)

	return &AckNack{
		ReaderID:      r.readerEID,
		WriterID:      r.writerGUID.EntityID,
		ReaderSNState: set,
		Count:         r.ackNackCount,
	}
}

// mark records sn as no longer missing. Caller holds r.mu.
func (r *Reader) mark(sn SequenceNumber) bool {
	if sn.Less(r.lowMark) {
		return false
	}
	d := sn.SubSeqNum(r.lowMark)
	if d.High != 0 || d.Low >= BitmapNumBits {
		logger().Debug("sequence number beyond reception window",
			"writer", r.writerGUID.String(),
			"seqnum", sn.String(),
			"low_mark", r.lowMark.String(),
		)
		return false
	}
	if r.received.IsSet(d.Low) {
		return false
	}
	r.received.Add(d.Low)
	r.advance()
	return true
}

// addIrrelevant queues [from, to), keeping irrelevant sorted by start and
// free of overlaps. Caller holds r.mu.
func (r *Reader) addIrrelevant(from, to SequenceNumber) {
	if to.LessEq(from) || to.LessEq(r.lowMark) {
		return
	}
	i, _ := slices.BinarySearchFunc(r.irrelevant, from, func(sr seqRange, sn SequenceNumber) int {
		return sr.from.Compare(sn)
	})
	r.irrelevant = slices.Insert(r.irrelevant, i, seqRange{from: from, to: to})

	merged := r.irrelevant[:1]
	for _, sr := range r.irrelevant[1:] {
		last := &merged[len(merged)-1]
		if sr.from.LessEq(last.to) {
			if last.to.Less(sr.to) {
				last.to = sr.to
			}
			continue
		}
		merged = append(merged, sr)
	}
	r.irrelevant = merged
}

// applyIrrelevant folds the queued ranges that reach into the window.
// Caller holds r.mu.
func (r *Reader) applyIrrelevant() {
	for len(r.irrelevant) > 0 {
		sr := r.irrelevant[0]
		limit := r.lowMark.Add(BitmapNumBits)
		switch {
		case sr.to.LessEq(r.lowMark):
			r.irrelevant = r.irrelevant[1:]
		case sr.from.LessEq(r.lowMark):
			r.irrelevant = r.irrelevant[1:]
			r.dropBelow(sr.to)
		case limit.LessEq(sr.from):
			return
		default:
			r.received.AddRange(clampOffset(r.lowMark, sr.from), clampOffset(r.lowMark, sr.to))
			if limit.Less(sr.to) {
				r.irrelevant[0].from = limit
				return
			}
			r.irrelevant = r.irrelevant[1:]
		}
	}
}

// dropBelow moves the low mark up to sn without looking at what follows
// it. Caller holds r.mu.
func (r *Reader) dropBelow(sn SequenceNumber) {
	if sn.LessEq(r.lowMark) {
		return
	}
	d := sn.SubSeqNum(r.lowMark)
	if d.High != 0 || d.Low >= BitmapNumBits {
		r.lowMark = sn
		r.received.Reset(0)
		return
	}
	r.skip(d.Low)
}

// advance moves the low mark past every contiguous arrival and every
// irrelevant range it reaches. Caller holds r.mu.
func (r *Reader) advance() {
	for {
		r.applyIrrelevant()
		var n uint32
		for n < BitmapNumBits && r.received.IsSet(n) {
			n++
		}
		if n == 0 {
			return
		}
		r.skip(n)
	}
}

// skip moves the low mark up by n <= BitmapNumBits. shiftLeft drops the
// first n slots without moving the base, so offsets stay relative to the
// low mark.
func (r *Reader) skip(n uint32) {
	r.lowMark = r.lowMark.Add(n)
	r.received.shiftLeft(n)
}
