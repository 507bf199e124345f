package rtps

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
)

const (
	GUIDPrefixLen = 12
	GUIDLen       = GUIDPrefixLen + 4
)

const (
	ENTITYID_UNKNOWN                                = 0x0
	ENTITYID_PARTICIPANT                            = 0x1c1
	ENTITYID_SEDP_BUILTIN_TOPIC_WRITER              = 0x2c2
	ENTITYID_SEDP_BUILTIN_TOPIC_READER              = 0x2c7
	ENTITYID_SEDP_BUILTIN_PUBLICATIONS_WRITER       = 0x3c2
	ENTITYID_SEDP_BUILTIN_PUBLICATIONS_READER       = 0x3c7
	ENTITYID_SEDP_BUILTIN_SUBSCRIPTIONS_WRITER      = 0x4c2
	ENTITYID_SEDP_BUILTIN_SUBSCRIPTIONS_READER      = 0x4c7
	ENTITYID_SPDP_BUILTIN_PARTICIPANT_WRITER        = 0x100c2
	ENTITYID_SPDP_BUILTIN_PARTICIPANT_READER        = 0x100c7
	ENTITYID_P2P_BUILTIN_PARTICIPANT_MESSAGE_WRITER = 0x200c2
	ENTITYID_P2P_BUILTIN_PARTICIPANT_MESSAGE_READER = 0x200c7
	ENTITYID_SOURCE_MASK                            = 0xc0
	ENTITYID_SOURCE_USER                            = 0x00
	ENTITYID_SOURCE_BUILTIN                         = 0xc0
	ENTITYID_SOURCE_VENDOR                          = 0x40
	ENTITYID_KIND_MASK                              = 0x3f
	ENTITYID_KIND_WRITER_WITH_KEY                   = 0x02
	ENTITYID_KIND_WRITER_NO_KEY                     = 0x03
	ENTITYID_KIND_READER_NO_KEY                     = 0x04
	ENTITYID_KIND_READER_WITH_KEY                   = 0x07
	ENTITYID_ALLOCSTEP                              = 0x100
)

var (
	nextUserEntityID = int32(0)
)

// EntityID is an entity id.
// NB: always encoded big endian, regardless of submessage endian flag
type EntityID uint32

func (eid EntityID) Kind() uint8 {
	return uint8(eid & 0xff)
}

// CreateUserID allocates an entity id unique within this process.
func CreateUserID(entityKind uint8) EntityID {
	// For user IDs, "the entityKey field within the EntityId_t
	// can be chosen arbitrarily by the middleware implementation
	// as long as the resulting EntityId_t is unique within the Participant.", sec 9.3.1.2
	return EntityID(atomic.AddInt32(&nextUserEntityID, ENTITYID_ALLOCSTEP) | int32(entityKind))
}

func (eid EntityID) IsWriter() bool {
	switch eid & ENTITYID_KIND_MASK {
	case ENTITYID_KIND_WRITER_WITH_KEY, ENTITYID_KIND_WRITER_NO_KEY:
		return true
	}
	return false
}

func (eid EntityID) IsReader() bool {
	switch eid & ENTITYID_KIND_MASK {
	case ENTITYID_KIND_READER_WITH_KEY, ENTITYID_KIND_READER_NO_KEY:
		return true
	}
	return false
}

func (eid EntityID) IsBuiltin() bool {
	return (eid & ENTITYID_SOURCE_MASK) == ENTITYID_SOURCE_BUILTIN
}

func appendEntityID(b []byte, eid EntityID) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(eid))
}

type GUIDPrefix [GUIDPrefixLen]byte

func (gp GUIDPrefix) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x%02x%02x-%02x%02x%02x%02x",
		gp[0], gp[1], gp[2], gp[3], gp[4], gp[5], gp[6], gp[7], gp[8], gp[9], gp[10], gp[11])
}

// GUID is comparable with ==.
type GUID struct {
	Prefix   GUIDPrefix
	EntityID EntityID
}

func GUIDFromBytes(b []byte) (GUID, error) {
	if len(b) < GUIDLen {
		return GUID{}, io.EOF
	}
	var g GUID
	copy(g.Prefix[:], b[:GUIDPrefixLen])
	g.EntityID = EntityID(binary.BigEndian.Uint32(b[GUIDPrefixLen:]))
	return g, nil
}

func (g GUID) Bytes() []byte {
	b := make([]byte, GUIDLen)
	copy(b, g.Prefix[:])
	binary.BigEndian.PutUint32(b[GUIDPrefixLen:], uint32(g.EntityID))
	return b
}

func (g GUID) Unknown() bool {
	return g == GUID{}
}

func (g GUID) String() string {
	return fmt.Sprintf("[%s : 0x%x]", g.Prefix.String(), uint32(g.EntityID))
}

// InstanceHandle is the flat 16 byte form of a GUID used as a key.
type InstanceHandle [GUIDLen]byte

// a handle holds exactly one prefix plus one entity id
var (
	_ [len(InstanceHandle{}) - len(GUIDPrefix{}) - 4]struct{}
	_ [len(GUIDPrefix{}) + 4 - len(InstanceHandle{})]struct{}
)

func InstanceHandleFromGUID(g GUID) InstanceHandle {
	var h InstanceHandle
	copy(h[:GUIDPrefixLen], g.Prefix[:])
	binary.BigEndian.PutUint32(h[GUIDPrefixLen:], uint32(g.EntityID))
	return h
}

func (h InstanceHandle) GUID() GUID {
	var g GUID
	copy(g.Prefix[:], h[:GUIDPrefixLen])
	g.EntityID = EntityID(binary.BigEndian.Uint32(h[GUIDPrefixLen:]))
	return g
}

func (h InstanceHandle) Defined() bool {
	return h != InstanceHandle{}
}
