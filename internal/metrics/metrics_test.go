package metrics

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRecord(total, added, errs, ignored, full uint64) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:8], total)
	binary.LittleEndian.PutUint64(buf[8:16], added)
	binary.LittleEndian.PutUint64(buf[16:24], errs)
	binary.LittleEndian.PutUint64(buf[24:32], ignored)
	binary.LittleEndian.PutUint64(buf[32:40], full)
	return buf
}

func TestDecodeRecordSatisfiesCounterCompleteness(t *testing.T) {
	buf := encodeRecord(10, 4, 1, 3, 2)
	m, err := decodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), m.Total)
	assert.Equal(t, uint64(10), m.Sum(), "added+error+ignored+ringbuffer_full must equal total")
}

func TestDecodeRecordRejectsShortBuffer(t *testing.T) {
	_, err := decodeRecord(make([]byte, recordSize-1))
	require.Error(t, err)
}

func TestHookIndexCoversEveryHook(t *testing.T) {
	assert.Len(t, hookIndex, 4)
	for _, hook := range hookIndex {
		found := false
		for _, want := range []string{"file_open", "path_unlink", "path_chmod", "path_chown"} {
			if string(hook) == want {
				found = true
			}
		}
		assert.True(t, found, "unexpected hook name %s", hook)
	}
}
