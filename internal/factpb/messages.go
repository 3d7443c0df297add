// Package factpb holds the hand-maintained wire bindings for the agent's
// external gRPC surface. There is no protoc-gen-go in this module's
// build; these types encode and decode themselves directly against
// fact.proto's field numbers using
// google.golang.org/protobuf/encoding/protowire, the same low-level
// package protoc-gen-go's generated Marshal methods are themselves built
// from. codec.go registers a grpc.Codec that calls these methods
// directly rather than going through protobuf reflection, since these
// types do not implement proto.Message.
package factpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// LineageEntry is one ancestor in a process's recorded lineage.
type LineageEntry struct {
	UID     uint32
	ExePath string
}

func (m *LineageEntry) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.UID))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.ExePath)
	return b
}

// ProcessDescriptor mirrors internal/factevent.Process field for field.
type ProcessDescriptor struct {
	Comm          string
	Args          []byte
	ExePath       string
	MemoryCgroup  string
	UID           uint32
	GID           uint32
	LoginUID      uint32
	PID           uint32
	Lineage       []*LineageEntry
	InRootMountNS bool
}

func (m *ProcessDescriptor) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Comm)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Args)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, m.ExePath)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, m.MemoryCgroup)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.UID))
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.GID))
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.LoginUID))
	b = protowire.AppendTag(b, 8, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.PID))
	for _, anc := range m.Lineage {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		sub := anc.marshalAppend(nil)
		b = protowire.AppendBytes(b, sub)
	}
	b = protowire.AppendTag(b, 10, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(m.InRootMountNS))
	return b
}

// InodeKey mirrors internal/factevent.InodeKey.
type InodeKey struct {
	Inode uint32
	Dev   uint32
}

func (m *InodeKey) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Inode))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Dev))
	return b
}

// ChmodPayload mirrors internal/factevent.ChmodPayload.
type ChmodPayload struct {
	OldMode uint32
	NewMode uint32
}

func (m *ChmodPayload) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.OldMode))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.NewMode))
	return b
}

// ChownPayload mirrors internal/factevent.ChownPayload.
type ChownPayload struct {
	OldUID uint32
	OldGID uint32
	NewUID uint32
	NewGID uint32
}

func (m *ChownPayload) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.OldUID))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.OldGID))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.NewUID))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.NewGID))
	return b
}

// FileEvent is the on-wire message shipped to the external consumer over
// the streaming transport. It is structurally equivalent to
// internal/factevent.Event; internal/delivery is the only caller that
// translates between the two.
type FileEvent struct {
	Timestamp uint64
	Type      int32
	Process   *ProcessDescriptor
	InodeKey  *InodeKey
	Filename  string
	Chmod     *ChmodPayload
	Chown     *ChownPayload
}

// Marshal serializes e into a protobuf wire-format byte slice.
func (e *FileEvent) Marshal() ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("factpb: nil FileEvent")
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Timestamp)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(e.Type)))
	if e.Process != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Process.marshalAppend(nil))
	}
	if e.InodeKey != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, e.InodeKey.marshalAppend(nil))
	}
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendString(b, e.Filename)
	if e.Chmod != nil {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Chmod.marshalAppend(nil))
	}
	if e.Chown != nil {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Chown.marshalAppend(nil))
	}
	return b, nil
}

// Unmarshal decodes a protobuf wire-format byte slice produced by
// Marshal back into e. Unknown fields are skipped, matching proto3's
// forward-compatibility rule.
func (e *FileEvent) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("factpb: FileEvent: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.timestamp: %w", protowire.ParseError(n))
			}
			e.Timestamp = v
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.type: %w", protowire.ParseError(n))
			}
			e.Type = int32(uint32(v))
			data = data[n:]
		case 3:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.process: %w", protowire.ParseError(n))
			}
			e.Process = &ProcessDescriptor{}
			if err := unmarshalProcess(e.Process, sub); err != nil {
				return fmt.Errorf("factpb: FileEvent.process: %w", err)
			}
			data = data[n:]
		case 4:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.inode_key: %w", protowire.ParseError(n))
			}
			e.InodeKey = &InodeKey{}
			if err := unmarshalInodeKey(e.InodeKey, sub); err != nil {
				return fmt.Errorf("factpb: FileEvent.inode_key: %w", err)
			}
			data = data[n:]
		case 5:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.filename: %w", protowire.ParseError(n))
			}
			e.Filename = s
			data = data[n:]
		case 6:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.chmod: %w", protowire.ParseError(n))
			}
			e.Chmod = &ChmodPayload{}
			if err := unmarshalChmod(e.Chmod, sub); err != nil {
				return fmt.Errorf("factpb: FileEvent.chmod: %w", err)
			}
			data = data[n:]
		case 7:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent.chown: %w", protowire.ParseError(n))
			}
			e.Chown = &ChownPayload{}
			if err := unmarshalChown(e.Chown, sub); err != nil {
				return fmt.Errorf("factpb: FileEvent.chown: %w", err)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("factpb: FileEvent: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalProcess(m *ProcessDescriptor, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Comm = s
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Args = append([]byte(nil), v...)
			data = data[n:]
		case 3:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ExePath = s
			data = data[n:]
		case 4:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MemoryCgroup = s
			data = data[n:]
		case 5:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.UID = uint32(v)
			data = data[n:]
		case 6:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.GID = uint32(v)
			data = data[n:]
		case 7:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.LoginUID = uint32(v)
			data = data[n:]
		case 8:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.PID = uint32(v)
			data = data[n:]
		case 9:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			anc := &LineageEntry{}
			if err := unmarshalLineageEntry(anc, sub); err != nil {
				return err
			}
			m.Lineage = append(m.Lineage, anc)
			data = data[n:]
		case 10:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.InRootMountNS = v != 0
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalLineageEntry(m *LineageEntry, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.UID = uint32(v)
			data = data[n:]
		case 2:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ExePath = s
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalInodeKey(m *InodeKey, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Inode = uint32(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Dev = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalChmod(m *ChmodPayload, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.OldMode = uint32(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.NewMode = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalChown(m *ChownPayload, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.OldUID = uint32(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.OldGID = uint32(v)
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.NewUID = uint32(v)
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.NewGID = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// Ack flows from the consumer back to the agent carrying the highest
// watermark it has durably received. The agent only records the latest
// watermark in its delivery stats; it never blocks on receiving one (see
// internal/delivery).
type Ack struct {
	Watermark uint64
}

// Marshal serializes a into a protobuf wire-format byte slice.
func (a *Ack) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, a.Watermark)
	return b, nil
}

// Unmarshal decodes a protobuf wire-format byte slice produced by
// Marshal back into a.
func (a *Ack) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("factpb: Ack: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("factpb: Ack.watermark: %w", protowire.ParseError(n))
			}
			a.Watermark = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("factpb: Ack: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
