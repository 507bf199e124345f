package rtps

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testReader(reliable bool) *Reader {
	return NewReader(testGUID(), CreateUserID(ENTITYID_KIND_READER_WITH_KEY), reliable)
}

func heartbeat(first, last SequenceNumber) *Heartbeat {
	return &Heartbeat{
		WriterID: ENTITYID_SEDP_BUILTIN_PUBLICATIONS_WRITER,
		FirstSN:  first,
		LastSN:   last,
	}
}

func lows(lo ...uint32) []SequenceNumber {
	out := make([]SequenceNumber, len(lo))
	for i, l := range lo {
		out[i] = sn(0, l)
	}
	return out
}

func TestReaderInOrder(t *testing.T) {
	r := testReader(true)
	assert.Equal(t, sn(0, 1), r.LowMark())
	assert.True(t, r.MaxReceived().Unknown())

	for i := uint32(1); i <= 5; i++ {
		require.True(t, r.Receive(sn(0, i)))
		assert.Equal(t, sn(0, i+1), r.LowMark())
	}
	assert.Equal(t, sn(0, 5), r.MaxReceived())

	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 5)))
	require.NotNil(t, an)
	assert.Equal(t, sn(0, 6), an.ReaderSNState.Base())
	assert.True(t, an.ReaderSNState.Empty())
	assert.Equal(t, r.WriterGUID().EntityID, an.WriterID)
}

func TestReaderOutOfOrder(t *testing.T) {
	r := testReader(true)
	for _, l := range []uint32{1, 2, 4, 7} {
		require.True(t, r.Receive(sn(0, l)))
	}
	assert.Equal(t, sn(0, 3), r.LowMark())
	assert.Equal(t, sn(0, 7), r.MaxReceived())

	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 8)))
	require.NotNil(t, an)
	assert.Equal(t, sn(0, 3), an.ReaderSNState.Base())
	assert.Equal(t, lows(3, 5, 6, 8), setMembers(an.ReaderSNState))

	// filling the hole releases the buffered arrivals
	require.True(t, r.Receive(sn(0, 3)))
	assert.Equal(t, sn(0, 5), r.LowMark())
	require.True(t, r.Receive(sn(0, 6)))
	require.True(t, r.Receive(sn(0, 5)))
	assert.Equal(t, sn(0, 8), r.LowMark())
}

func TestReaderDuplicates(t *testing.T) {
	r := testReader(true)
	require.True(t, r.Receive(sn(0, 1)))
	assert.False(t, r.Receive(sn(0, 1)))
	require.True(t, r.Receive(sn(0, 5)))
	assert.False(t, r.Receive(sn(0, 5)))
	assert.False(t, r.Receive(sn(0, 0)))
	assert.Equal(t, sn(0, 2), r.LowMark())
}

func TestReaderWindow(t *testing.T) {
	r := testReader(true)
	assert.True(t, r.Receive(sn(0, 256)))
	assert.False(t, r.Receive(sn(0, 257)))
	assert.False(t, r.Receive(sn(1, 0)))
	assert.Equal(t, sn(0, 256), r.MaxReceived())

	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 1000)))
	require.NotNil(t, an)
	assert.Equal(t, uint32(255), an.ReaderSNState.NumBits())
	assert.True(t, an.ReaderSNState.IsSet(sn(0, 255)))
	assert.False(t, an.ReaderSNState.IsSet(sn(0, 256)))
}

func TestReaderHeartbeatFirstAhead(t *testing.T) {
	r := testReader(true)
	r.Receive(sn(0, 1))
	r.Receive(sn(0, 2))
	r.Receive(sn(0, 10))

	an := r.AckNack(heartbeat(sn(0, 5), sn(0, 12)))
	require.NotNil(t, an)
	assert.Equal(t, sn(0, 5), r.LowMark())
	assert.Equal(t, lows(5, 6, 7, 8, 9, 11, 12), setMembers(an.ReaderSNState))

	// too far to slide: start over at FirstSN
	an = r.AckNack(heartbeat(sn(0, 5000), sn(0, 5001)))
	assert.Equal(t, sn(0, 5000), r.LowMark())
	assert.Equal(t, lows(5000, 5001), setMembers(an.ReaderSNState))
}

func TestReaderHeartbeatBehind(t *testing.T) {
	r := testReader(true)
	for i := uint32(1); i <= 10; i++ {
		r.Receive(sn(0, i))
	}
	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 4)))
	require.NotNil(t, an)
	assert.Equal(t, sn(0, 11), an.ReaderSNState.Base())
	assert.True(t, an.ReaderSNState.Empty())

	// writer with nothing cached
	an = r.AckNack(heartbeat(sn(0, 11), sn(0, 10)))
	assert.True(t, an.ReaderSNState.Empty())
}

func TestReaderAckNackCount(t *testing.T) {
	r := testReader(true)
	hb := heartbeat(sn(0, 1), sn(0, 1))
	for i := uint32(1); i <= 3; i++ {
		assert.Equal(t, i, r.AckNack(hb).Count)
	}
}

func TestReaderBestEffort(t *testing.T) {
	r := testReader(false)
	assert.True(t, r.Receive(sn(0, 2)))
	assert.Nil(t, r.AckNack(heartbeat(sn(0, 1), sn(0, 2))))
}

func TestReaderApplyGap(t *testing.T) {
	gap := func(start SequenceNumber, listBase SequenceNumber, members ...SequenceNumber) *Gap {
		list := NewSeqNumSet(listBase)
		for _, m := range members {
			list.Add(m)
		}
		return &Gap{GapStart: start, GapList: list}
	}

	cases := []struct {
		name     string
		received []uint32
		gap      *Gap
		lowMark  SequenceNumber
		missing  []SequenceNumber
	}{
		{"contiguous from low mark", []uint32{1}, gap(sn(0, 2), sn(0, 5), sn(0, 7)),
			sn(0, 5), lows(5, 6, 8)},
		{"ahead of low mark", nil, gap(sn(0, 5), sn(0, 8)),
			sn(0, 1), lows(1, 2, 3, 4, 8)},
		{"closes the hole", []uint32{1, 4}, gap(sn(0, 2), sn(0, 4)),
			sn(0, 5), lows(5, 6, 7, 8)},
		{"list only", nil, gap(sn(0, 1), sn(0, 1), sn(0, 1), sn(0, 3)),
			sn(0, 2), lows(2, 4, 5, 6, 7, 8)},
		{"already below low mark", []uint32{1, 2, 3}, gap(sn(0, 1), sn(0, 3), sn(0, 3)),
			sn(0, 4), lows(4, 5, 6, 7, 8)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := testReader(true)
			for _, l := range c.received {
				require.True(t, r.Receive(sn(0, l)))
			}
			r.ApplyGap(c.gap)
			assert.Equal(t, c.lowMark, r.LowMark())

			an := r.AckNack(heartbeat(sn(0, 1), sn(0, 8)))
			assert.Equal(t, c.missing, setMembers(an.ReaderSNState))
		})
	}
}

func TestReaderGapWiderThanWindow(t *testing.T) {
	r := testReader(true)
	r.ApplyGap(&Gap{GapStart: sn(0, 5), GapList: NewSeqNumSet(sn(0, 400))})
	assert.Equal(t, sn(0, 1), r.LowMark())

	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 399)))
	assert.Equal(t, lows(1, 2, 3, 4), setMembers(an.ReaderSNState))

	for i := uint32(1); i <= 4; i++ {
		require.True(t, r.Receive(sn(0, i)))
	}
	assert.Equal(t, sn(0, 400), r.LowMark())
	assert.Equal(t, sn(0, 4), r.MaxReceived())

	an = r.AckNack(heartbeat(sn(0, 1), sn(0, 399)))
	assert.Equal(t, sn(0, 400), an.ReaderSNState.Base())
	assert.True(t, an.ReaderSNState.Empty())
}

func TestReaderGapListBeyondWindow(t *testing.T) {
	r := testReader(true)
	list := NewSeqNumSet(sn(0, 600))
	list.Add(sn(0, 600))
	list.Add(sn(0, 601))
	list.Add(sn(0, 700))
	r.ApplyGap(&Gap{GapStart: sn(0, 600), GapList: list})

	for i := uint32(1); i < 600; i++ {
		require.True(t, r.Receive(sn(0, i)), "%d", i)
	}
	assert.Equal(t, sn(0, 602), r.LowMark())

	an := r.AckNack(heartbeat(sn(0, 1), sn(0, 702)))
	want := make([]SequenceNumber, 0)
	for i := uint32(602); i <= 702; i++ {
		if i != 700 {
			want = append(want, sn(0, i))
		}
	}
	assert.Equal(t, want, setMembers(an.ReaderSNState))
}

func TestReaderOverlappingGaps(t *testing.T) {
	r := testReader(true)
	r.ApplyGap(&Gap{GapStart: sn(0, 300), GapList: NewSeqNumSet(sn(0, 350))})
	r.ApplyGap(&Gap{GapStart: sn(0, 340), GapList: NewSeqNumSet(sn(0, 360))})
	r.ApplyGap(&Gap{GapStart: sn(0, 290), GapList: NewSeqNumSet(sn(0, 310))})

	r.AckNack(heartbeat(sn(0, 290), sn(0, 400)))
	assert.Equal(t, sn(0, 360), r.LowMark())
}

func TestReaderGapWithoutList(t *testing.T) {
	r := testReader(true)
	r.ApplyGap(&Gap{GapStart: sn(0, 1)})
	assert.Equal(t, sn(0, 1), r.LowMark())
}

func TestReaderIrrelevantNotReceived(t *testing.T) {
	r := testReader(true)
	r.ApplyGap(&Gap{GapStart: sn(0, 1), GapList: NewSeqNumSet(sn(0, 4))})
	assert.Equal(t, sn(0, 4), r.LowMark())
	assert.True(t, r.MaxReceived().Unknown())
}

func TestReaderAcrossLowWordWrap(t *testing.T) {
	r := testReader(true)
	start := sn(0, 0xfffffff0)
	r.AckNack(heartbeat(start, start))
	require.Equal(t, start, r.LowMark())

	for i := uint32(0); i < 40; i++ {
		if i == 20 {
			continue
		}
		require.True(t, r.Receive(start.Add(i)))
	}
	assert.Equal(t, start.Add(20), r.LowMark())
	assert.Equal(t, sn(1, 0x17), r.MaxReceived())

	an := r.AckNack(heartbeat(start, start.Add(45)))
	want := []SequenceNumber{start.Add(20)}
	for i := uint32(40); i <= 45; i++ {
		want = append(want, start.Add(i))
	}
	assert.Equal(t, want, setMembers(an.ReaderSNState))
}

func TestReaderConcurrentReceive(t *testing.T) {
	r := testReader(true)
	var accepted atomic.Int32

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := uint32(1); i <= 200; i++ {
				if r.Receive(sn(0, i)) {
					accepted.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(200), accepted.Load())
	assert.Equal(t, sn(0, 201), r.LowMark())
	assert.Equal(t, sn(0, 200), r.MaxReceived())
}
