package rtps

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reliability submessage ids. Only the bodies below are coded here;
// message and submessage headers belong to the framing layer.
const (
	SUBMSG_ID_ACKNACK   = 0x06
	SUBMSG_ID_HEARTBEAT = 0x07
	SUBMSG_ID_GAP       = 0x08
	SUBMSG_ID_NACK_FRAG = 0x12
)

const (
	heartbeatLen = 28
)

// AckNack reports which sequence numbers a reader is still missing.
// An empty ReaderSNState acknowledges everything below its base.
// ReaderSNState must not be nil when encoding.
type AckNack struct {
	ReaderID      EntityID
	WriterID      EntityID
	ReaderSNState *SeqNumSet
	Count         uint32
}

func (an *AckNack) SubmsgID() uint8 { return SUBMSG_ID_ACKNACK }

func (an *AckNack) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 0, 8+12+4*bitmapNumWords+4)
	b = appendEntityID(b, an.ReaderID)
	b = appendEntityID(b, an.WriterID)
	b = append(b, an.ReaderSNState.Bytes(order)...)
	return appendUint32(order, b, an.Count)
}

func AckNackFromBytes(order binary.ByteOrder, b []byte) (*AckNack, error) {
	if len(b) < 8 {
		return nil, io.EOF
	}
	an := &AckNack{
		ReaderID: EntityID(binary.BigEndian.Uint32(b[0:])),
		WriterID: EntityID(binary.BigEndian.Uint32(b[4:])),
	}
	set, n, err := SeqNumSetFromBytes(order, b[8:])
	if err != nil {
		return nil, fmt.Errorf("acknack: %w", err)
	}
	an.ReaderSNState = set
	b = b[8+n:]
	if len(b) < 4 {
		return nil, fmt.Errorf("acknack count: %w", io.EOF)
	}
	an.Count = order.Uint32(b)
	return an, nil
}

// NackFrag reports the missing fragments of a single sample.
// FragmentNumberState must not be nil when encoding.
type NackFrag struct {
	ReaderID            EntityID
	WriterID            EntityID
	WriterSN            SequenceNumber
	FragmentNumberState *FragNumSet
	Count               uint32
}

func (nf *NackFrag) SubmsgID() uint8 { return SUBMSG_ID_NACK_FRAG }

func (nf *NackFrag) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 0, 16+8+4*bitmapNumWords+4)
	b = appendEntityID(b, nf.ReaderID)
	b = appendEntityID(b, nf.WriterID)
	b = append(b, nf.WriterSN.Bytes(order)...)
	b = append(b, nf.FragmentNumberState.Bytes(order)...)
	return appendUint32(order, b, nf.Count)
}

func NackFragFromBytes(order binary.ByteOrder, b []byte) (*NackFrag, error) {
	if len(b) < 16 {
		return nil, io.EOF
	}
	nf := &NackFrag{
		ReaderID: EntityID(binary.BigEndian.Uint32(b[0:])),
		WriterID: EntityID(binary.BigEndian.Uint32(b[4:])),
	}
	nf.WriterSN = seqNumAt(order, b[8:])
	set, n, err := FragNumSetFromBytes(order, b[16:])
	if err != nil {
		return nil, fmt.Errorf("nackfrag: %w", err)
	}
	nf.FragmentNumberState = set
	b = b[16+n:]
	if len(b) < 4 {
		return nil, fmt.Errorf("nackfrag count: %w", io.EOF)
	}
	nf.Count = order.Uint32(b)
	return nf, nil
}

// Heartbeat announces the range of sequence numbers a writer holds.
type Heartbeat struct {
	ReaderID EntityID
	WriterID EntityID
	FirstSN  SequenceNumber
	LastSN   SequenceNumber
	Count    uint32
}

func (hb *Heartbeat) SubmsgID() uint8 { return SUBMSG_ID_HEARTBEAT }

func (hb *Heartbeat) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 0, heartbeatLen)
	b = appendEntityID(b, hb.ReaderID)
	b = appendEntityID(b, hb.WriterID)
	b = append(b, hb.FirstSN.Bytes(order)...)
	b = append(b, hb.LastSN.Bytes(order)...)
	return appendUint32(order, b, hb.Count)
}

func HeartbeatFromBytes(order binary.ByteOrder, b []byte) (*Heartbeat, error) {
	if len(b) < heartbeatLen {
		return nil, io.EOF
	}
	hb := &Heartbeat{
		ReaderID: EntityID(binary.BigEndian.Uint32(b[0:])),
		WriterID: EntityID(binary.BigEndian.Uint32(b[4:])),
		Count:    order.Uint32(b[24:]),
	}
	hb.FirstSN = seqNumAt(order, b[8:])
	hb.LastSN = seqNumAt(order, b[16:])
	return hb, nil
}

// Gap tells a reader that [GapStart, GapList.Base()) and every member
// of GapList are no longer relevant. GapList must not be nil when
// encoding.
type Gap struct {
	ReaderID EntityID
	WriterID EntityID
	GapStart SequenceNumber
	GapList  *SeqNumSet
}

func (g *Gap) SubmsgID() uint8 { return SUBMSG_ID_GAP }

func (g *Gap) Bytes(order binary.ByteOrder) []byte {
	b := make([]byte, 0, 16+12+4*bitmapNumWords)
	b = appendEntityID(b, g.ReaderID)
	b = appendEntityID(b, g.WriterID)
	b = append(b, g.GapStart.Bytes(order)...)
	return append(b, g.GapList.Bytes(order)...)
}

func GapFromBytes(order binary.ByteOrder, b []byte) (*Gap, error) {
	if len(b) < 16 {
		return nil, io.EOF
	}
	g := &Gap{
		ReaderID: EntityID(binary.BigEndian.Uint32(b[0:])),
		WriterID: EntityID(binary.BigEndian.Uint32(b[4:])),
	}
	g.GapStart = seqNumAt(order, b[8:])
	set, _, err := SeqNumSetFromBytes(order, b[16:])
	if err != nil {
		return nil, fmt.Errorf("gap: %w", err)
	}
	g.GapList = set
	return g, nil
}
