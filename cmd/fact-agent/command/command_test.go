package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathBytesPreservesOrder(t *testing.T) {
	cases := []struct {
		in   []string
		want [][]byte
	}{
		{nil, [][]byte{}},
		{[]string{"/etc"}, [][]byte{[]byte("/etc")}},
		{[]string{"/etc", "/var/lib"}, [][]byte{[]byte("/etc"), []byte("/var/lib")}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, pathBytes(c.in))
	}
}

func TestExitCodeErrorCarriesCode(t *testing.T) {
	wrapped := errors.New("boom")
	err := &exitCodeError{code: 6, err: wrapped}

	assert.Equal(t, 6, err.ExitCode())
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, wrapped)
}

func TestReadHostMountNSParsesLinkFormat(t *testing.T) {
	// /proc/self/ns/mnt is present on any Linux test runner; this just
	// checks the parse succeeds and returns a plausible non-zero id.
	ns, err := readHostMountNS()
	if err != nil {
		t.Skipf("no /proc/self/ns/mnt on this platform: %v", err)
	}
	assert.NotZero(t, ns)
}
