package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksTableShape(t *testing.T) {
	require.Len(t, Hooks, 4)

	seen := map[string]bool{}
	for _, h := range Hooks {
		assert.False(t, seen[h.Program], "duplicate program name %s", h.Program)
		seen[h.Program] = true
	}

	// file_open and path_unlink must abort startup when they cannot
	// attach; chmod/chown only narrow coverage.
	assert.Equal(t, HookMandatory, Hooks[0].Requirement)
	assert.Equal(t, HookMandatory, Hooks[1].Requirement)
	assert.Equal(t, HookRecoverable, Hooks[2].Requirement)
	assert.Equal(t, HookRecoverable, Hooks[3].Requirement)
}

func TestDPathFlags(t *testing.T) {
	cases := []struct {
		name   string
		report FeatureReport
		want   [4]uint8
	}{
		{
			name:   "helper missing disables every hook",
			report: FeatureReport{DPathHelper: false},
			want:   [4]uint8{0, 0, 0, 0},
		},
		{
			name:   "helper present enables only allowlisted hooks",
			report: FeatureReport{DPathHelper: true},
			want:   [4]uint8{1, 0, 0, 0},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.report.DPathFlags())
		})
	}
}
