package factpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileEventRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		ev   *FileEvent
	}{
		{
			name: "open",
			ev: &FileEvent{
				Timestamp: 123456789,
				Type:      0,
				Process: &ProcessDescriptor{
					Comm:         "cat",
					Args:         []byte("cat\x00/etc/hosts\x00"),
					ExePath:      "/usr/bin/cat",
					MemoryCgroup: "/system.slice/app.service",
					UID:          1000,
					GID:          1000,
					LoginUID:     1000,
					PID:          4242,
					Lineage: []*LineageEntry{
						{UID: 0, ExePath: "/usr/bin/bash"},
						{UID: 0, ExePath: "/sbin/init"},
					},
					InRootMountNS: true,
				},
				InodeKey: &InodeKey{Inode: 99, Dev: 2049},
				Filename: "/etc/hosts",
			},
		},
		{
			name: "chmod",
			ev: &FileEvent{
				Timestamp: 42,
				Type:      3,
				Process:   &ProcessDescriptor{Comm: "chmod"},
				InodeKey:  &InodeKey{Inode: 7, Dev: 1},
				Filename:  "/tmp/watch/f",
				Chmod:     &ChmodPayload{OldMode: 0644, NewMode: 0600},
			},
		},
		{
			name: "chown",
			ev: &FileEvent{
				Timestamp: 42,
				Type:      4,
				Process:   &ProcessDescriptor{Comm: "chown"},
				InodeKey:  &InodeKey{Inode: 7, Dev: 1},
				Filename:  "/tmp/watch/f",
				Chown:     &ChownPayload{OldUID: 0, OldGID: 0, NewUID: 1000, NewGID: 1000},
			},
		},
		{
			name: "no optional payload",
			ev: &FileEvent{
				Timestamp: 1,
				Type:      2,
				Process:   &ProcessDescriptor{Comm: "rm"},
				Filename:  "/tmp/watch/f",
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, err := c.ev.Marshal()
			require.NoError(t, err)

			got := &FileEvent{}
			require.NoError(t, got.Unmarshal(raw))
			assert.Equal(t, c.ev, got)
		})
	}
}

func TestFileEventUnmarshalSkipsUnknownFields(t *testing.T) {
	ev := &FileEvent{Timestamp: 5, Process: &ProcessDescriptor{Comm: "x"}, Filename: "/a"}
	raw, err := ev.Marshal()
	require.NoError(t, err)

	// Append a varint field with a tag number this message never defines.
	raw = append(raw, 0xF8, 0x01, 0x01) // field 31, varint, value 1

	got := &FileEvent{}
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, ev, got)
}

func TestAckRoundTrip(t *testing.T) {
	a := &Ack{Watermark: 9001}
	raw, err := a.Marshal()
	require.NoError(t, err)

	got := &Ack{}
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, a, got)
}
