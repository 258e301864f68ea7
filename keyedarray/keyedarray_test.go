package keyedarray_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/tskv/keyedarray"
)

type bigKey int

const (
	bigA bigKey = iota
	bigB
	bigC
)

var bigNames = [...]string{"a", "b", "c"}

func (k bigKey) String() string { return bigNames[k] }

type smallKey int

const (
	smallA smallKey = iota
	smallC
)

var smallNames = [...]string{"a", "c"}

func (k smallKey) String() string { return smallNames[k] }

func TestZeroInitialized(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	require.EqualValues(t, 0, a.Get(bigA))
	require.EqualValues(t, 0, a.Get(bigB))
	require.EqualValues(t, 0, a.Get(bigC))
}

func TestGetSet(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	a.Set(bigA, 42)
	a.Set(bigB, 7)

	require.EqualValues(t, 42, a.Get(bigA))
	require.EqualValues(t, 7, a.Get(bigB))
}

func TestAddSingleSlot(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	a.Add(bigA, 1)
	a.Add(bigA, 2)
	require.EqualValues(t, 3, a.Get(bigA))
}

// TestAddAllSubsetKeySpace is test_key_array.cpp's operator+= case:
// Big{a,b,c} += Small{a,c}, where Small's key set is a genuine subset of
// Big's rather than an identical key space.
func TestAddAllSubsetKeySpace(t *testing.T) {
	big := keyedarray.New[bigKey, uint64](3)
	small := keyedarray.New[smallKey, uint64](2)

	big.Set(bigA, 1)
	big.Set(bigB, 10)
	big.Set(bigC, 100)

	small.Set(smallA, 2)
	small.Set(smallC, 3)

	keyedarray.AddAll(big, small)

	require.EqualValues(t, 3, big.Get(bigA))   // 1 + 2
	require.EqualValues(t, 10, big.Get(bigB))  // unchanged, absent from small
	require.EqualValues(t, 103, big.Get(bigC)) // 100 + 3
}

func TestAddAllIdenticalKeySpace(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	b := keyedarray.New[bigKey, uint64](3)

	a.Set(bigA, 1)
	a.Set(bigB, 2)
	a.Set(bigC, 3)

	b.Set(bigA, 10)
	b.Set(bigB, 20)
	b.Set(bigC, 30)

	keyedarray.AddAll(a, b)

	require.EqualValues(t, 11, a.Get(bigA))
	require.EqualValues(t, 22, a.Get(bigB))
	require.EqualValues(t, 33, a.Get(bigC))
}

func TestAddAllPanicsWhenSourceIsNotASubset(t *testing.T) {
	dst := keyedarray.New[smallKey, uint64](2) // names "a", "c" only
	src := keyedarray.New[bigKey, uint64](3)   // names "a", "b", "c" — "b" not in dst

	require.Panics(t, func() { keyedarray.AddAll(dst, src) })
}

func TestResetAndForEach(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	a.Set(bigA, 1)
	a.Set(bigB, 2)
	a.Set(bigC, 3)
	a.Reset()

	seen := map[bigKey]uint64{}
	a.ForEach(func(k bigKey, v uint64) { seen[k] = v })
	require.Len(t, seen, 3)
	require.EqualValues(t, 0, seen[bigA])
	require.EqualValues(t, 0, seen[bigB])
	require.EqualValues(t, 0, seen[bigC])
}

func TestClone(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	a.Set(bigA, 5)

	c := a.Clone()
	c.Set(bigA, 99)

	require.EqualValues(t, 5, a.Get(bigA))
	require.EqualValues(t, 99, c.Get(bigA))
}

func TestLen(t *testing.T) {
	a := keyedarray.New[bigKey, uint64](3)
	require.Equal(t, 3, a.Len())
}
