package sunvox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

func TestCallTableNamesUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]sunvox.Op, len(sunvox.CallTable))
	for op, d := range sunvox.CallTable {
		require.NotEmpty(t, d.Name, "operation %d has no name", int(op))

		if prev, ok := seen[d.Name]; ok {
			t.Errorf("name %q used by operations %d and %d", d.Name, int(prev), int(op))
		}
		seen[d.Name] = op

		assert.Equal(t, d.Name, op.String())
	}

	assert.Equal(t, "unknown", sunvox.Op(-1).String())
}

// The lock requirement marks exactly the structural mutations: operations
// that change the module or pattern graph while the engine may be rendering.
func TestCallTableLockRequirements(t *testing.T) {
	t.Parallel()

	want := map[sunvox.Op]bool{
		sunvox.OpNewModule:        true,
		sunvox.OpRemoveModule:     true,
		sunvox.OpConnectModule:    true,
		sunvox.OpDisconnectModule: true,
		sunvox.OpPatternMute:      true,
	}

	for op, d := range sunvox.CallTable {
		assert.Equal(t, want[op], d.NeedsLock, "lock requirement for %s", d.Name)
	}
}

func TestCallTableBridgeOps(t *testing.T) {
	t.Parallel()

	bridge := map[sunvox.Op]bool{
		sunvox.OpInitBuffer:    true,
		sunvox.OpFillBuffer:    true,
		sunvox.OpInitShmBuffer: true,
		sunvox.OpFillShmBuffer: true,
		sunvox.OpKill:          true,
	}

	for op, d := range sunvox.CallTable {
		assert.Equal(t, bridge[op], d.Bridge, "bridge flag for %s", d.Name)
	}

	// Kill is the only operation with no response at all.
	for op, d := range sunvox.CallTable {
		if op == sunvox.OpKill {
			assert.Equal(t, sunvox.KindNil, d.Ret)
			continue
		}

		assert.NotEqual(t, sunvox.KindNil, d.Ret, "%s must declare a result", d.Name)
	}
}
