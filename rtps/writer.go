package rtps

import (
	"sync"
)

// Change is one cached sample.
type Change struct {
	SeqNum SequenceNumber
	Data   []byte
}

// Writer keeps the history cache for one matched reader and serves its
// retransmission requests.
type Writer struct {
	mu             sync.Mutex
	writerEID      EntityID
	firstSeqNum    SequenceNumber // oldest change still cached
	lastSeqNum     SequenceNumber // newest change assigned
	history        map[SequenceNumber][]byte
	heartbeatCount uint32
}

func NewWriter(writerEID EntityID) *Writer {
	return &Writer{
		writerEID:   writerEID,
		firstSeqNum: NewSequenceNumber(0, 1),
		history:     make(map[SequenceNumber][]byte),
	}
}

func (w *Writer) EntityID() EntityID {
	return w.writerEID
}

// Write caches data under the next sequence number, starting at 1.
func (w *Writer) Write(data []byte) SequenceNumber {
	w.mu.Lock()
	defer w.mu.Unlock()

	sn := w.lastSeqNum.Increment()
	w.history[sn] = data
	return sn
}

// Heartbeat announces the cached range. With nothing cached LastSN is
// FirstSN-1.
func (w *Writer) Heartbeat(readerID EntityID) *Heartbeat {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.heartbeatCount++
	return &Heartbeat{
		ReaderID: readerID,
		WriterID: w.writerEID,
		FirstSN:  w.firstSeqNum,
		LastSN:   w.lastSeqNum,
		Count:    w.heartbeatCount,
	}
}

// HandleAckNack drops every change acknowledged by an and returns the
// requested changes still in the cache, in ascending order. An AckNack
// without a ReaderSNState is ignored.
func (w *Writer) HandleAckNack(an *AckNack) []Change {
	set := an.ReaderSNState
	if set == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for w.firstSeqNum.Less(set.Base()) && w.firstSeqNum.LessEq(w.lastSeqNum) {
		delete(w.history, w.firstSeqNum)
		w.firstSeqNum.Increment()
	}

	var resend []Change
	set.ForEach(func(sn SequenceNumber) {
		data, ok := w.history[sn]
		if !ok {
			logger().Debug("requested change not in history",
				"writer", uint32(w.writerEID),
				"seqnum", sn.String(),
			)
			return
		}
		resend = append(resend, Change{SeqNum: sn, Data: data})
	})
	return resend
}

// Len returns the number of cached changes.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.history)
}
