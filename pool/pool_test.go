package pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateScansFromStart(t *testing.T) {
	p := New(4)
	require.Equal(t, 4, p.Len())
	require.Equal(t, 4, p.Free())

	for want := 0; want < 4; want++ {
		id, err := p.Allocate()
		require.NoError(t, err)
		require.EqualValues(t, want, id)
		require.EqualValues(t, want, p.Cursor())
	}
	require.Zero(t, p.Free())
	require.Equal(t, 4, p.Used())

	_, err := p.Allocate()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocatedBlockIsZeroed(t *testing.T) {
	p := New(2)
	id, err := p.Allocate()
	require.NoError(t, err)

	b := p.Block(id)
	require.Len(t, b, BlockSize)
	for i := range b {
		b[i] = 0xff
	}

	p.Release(id)
	again, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, make([]byte, BlockSize), p.Block(again))
}

func TestReleaseBiasesCursor(t *testing.T) {
	p := New(8)
	for i := 0; i < 6; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}

	p.Release(2)
	require.EqualValues(t, 1, p.Cursor())

	id, err := p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 2, id, "released slot is reused first")

	// scanning continues past the reused slot
	id, err = p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 6, id)
}

func TestReleaseSlotZeroWraps(t *testing.T) {
	p := New(3)
	for i := 0; i < 3; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}

	p.Release(0)
	require.EqualValues(t, 2, p.Cursor())

	id, err := p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 0, id)
}

func TestAllocateFindsCursorSlot(t *testing.T) {
	p := New(3)
	for i := 0; i < 3; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}

	// free slot 1, then move the cursor onto it by freeing and reusing 2
	p.Release(1)
	p.Release(2)
	id, err := p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 2, id)
	id, err = p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	p.Release(1)
	p.cursor = 1
	id, err = p.Allocate()
	require.NoError(t, err)
	require.EqualValues(t, 1, id, "the cursor slot is the last candidate")
}

func TestReleaseUnallocatedPanics(t *testing.T) {
	p := New(2)
	require.Panics(t, func() { p.Release(0) })
	require.Panics(t, func() { p.Release(5) })
	require.Panics(t, func() { p.Block(1) })
	require.Panics(t, func() { New(0) })
}

func TestConservation(t *testing.T) {
	const n = 64
	p := New(n)
	rng := rand.New(rand.NewSource(1))

	var owned []BlockID
	seen := make(map[BlockID]bool)
	for i := 0; i < 10000; i++ {
		if rng.Intn(3) > 0 {
			id, err := p.Allocate()
			if len(owned) == n {
				require.ErrorIs(t, err, ErrExhausted)
			} else {
				require.NoError(t, err)
				require.False(t, seen[id], "block %d handed out twice", id)
				seen[id] = true
				owned = append(owned, id)
			}
		} else if len(owned) > 0 {
			j := rng.Intn(len(owned))
			id := owned[j]
			owned[j] = owned[len(owned)-1]
			owned = owned[:len(owned)-1]
			delete(seen, id)
			p.Release(id)
		}

		require.Equal(t, n, p.Free()+p.Used())
		require.Equal(t, len(owned), p.Used())
	}
}
