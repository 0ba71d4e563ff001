package sunvox_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

func TestSlotAllocation(t *testing.T) {
	t.Parallel()

	p, eng, _ := startBridge(t)

	// Slot numbers come out lowest-first.
	slots := make([]*sunvox.Slot, 0, sunvox.MaxSlots)
	for i := 0; i < sunvox.MaxSlots; i++ {
		s, err := sunvox.NewSlot(p)
		require.NoError(t, err)
		assert.Equal(t, i, s.Number())
		slots = append(slots, s)
	}

	// All slots taken.
	_, err := sunvox.NewSlot(p)
	assert.ErrorIs(t, err, sunvox.ErrNoSlotsAvailable)

	// Freeing the middle gives its number back first.
	require.NoError(t, slots[1].Close())
	assert.Equal(t, 1, eng.closeSlots[1])

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Number())
	assert.Equal(t, 2, eng.openSlots[1])
}

func TestSlotCloseIdempotent(t *testing.T) {
	t.Parallel()

	p, eng, _ := startBridge(t)

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close should be a no-op")
	assert.Equal(t, 1, eng.closeSlots[0], "engine close should run once")

	_, err = s.Play()
	assert.ErrorIs(t, err, sunvox.ErrSlotClosed)
	_, err = s.SongName()
	assert.ErrorIs(t, err, sunvox.ErrSlotClosed)
	assert.ErrorIs(t, s.Lock(), sunvox.ErrSlotClosed)
}

// Nested locks must coalesce into one native lock/unlock pair.
func TestSlotLockCounting(t *testing.T) {
	t.Parallel()

	p, eng, _ := startBridge(t)

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)

	require.NoError(t, s.Lock())
	require.NoError(t, s.Lock())
	require.NoError(t, s.Lock())
	assert.Equal(t, 1, eng.lockCalls[0], "only the first Lock reaches the engine")

	require.NoError(t, s.Unlock())
	require.NoError(t, s.Unlock())
	assert.Equal(t, 0, eng.unlock[0], "native unlock only on the last release")

	require.NoError(t, s.Unlock())
	assert.Equal(t, 1, eng.unlock[0])

	// Unmatched unlock is a no-op.
	require.NoError(t, s.Unlock())
	assert.Equal(t, 1, eng.unlock[0])
	assert.Equal(t, 1, eng.lockCalls[0])
}

// Structural mutations take the engine lock themselves, and join an
// already-held outer lock instead of taking a second one.
func TestSlotStructuralOpsSelfLock(t *testing.T) {
	t.Parallel()

	p, eng, _ := startBridge(t)

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)

	mod, err := s.NewModule("Generator", "gen", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, mod)
	assert.Equal(t, 1, eng.lockCalls[0])
	assert.Equal(t, 1, eng.unlock[0])
	assert.Equal(t, 1, eng.newModuleCalls)

	require.NoError(t, s.Lock())
	_, err = s.ConnectModule(mod, 0)
	require.NoError(t, err)
	_, err = s.PatternMute(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, eng.lockCalls[0], "batched ops share the outer lock")
	require.NoError(t, s.Unlock())
	assert.Equal(t, 2, eng.unlock[0])
}

func TestSlotModuleQueries(t *testing.T) {
	t.Parallel()

	p, _, _ := startBridge(t)

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)

	x, y, err := s.ModuleXY(0)
	require.NoError(t, err)
	assert.Equal(t, 512, x)
	assert.Equal(t, 512, y)

	flags, err := s.ModuleFlags(0)
	require.NoError(t, err)
	assert.NotZero(t, flags&sunvox.SV_MODULE_FLAG_EXISTS)

	name, err := s.ModuleCtlName(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Volume", name)
}

// Kill while a slot lock is held must not deadlock anything: the lock count
// is supervisor-side state and the worker is gone.
func TestKillWhileLockHeld(t *testing.T) {
	t.Parallel()

	p, _, done := startBridge(t)

	s, err := sunvox.NewSlot(p)
	require.NoError(t, err)
	require.NoError(t, s.Lock())

	require.NoError(t, p.Kill())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker loop did not stop after kill")
	}

	_, err = s.Play()
	assert.ErrorIs(t, err, sunvox.ErrWorkerKilled)
	assert.ErrorIs(t, s.Unlock(), sunvox.ErrWorkerKilled)
}
