package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAdd(t *testing.T) {
	t.Run("first primitive is an edge", func(t *testing.T) {
		r := newRecord[string]("ted")
		require.True(t, r.Add(1, "hand"))
		require.Equal(t, 1, r.Count())
	})

	t.Run("additional primitive is not an edge", func(t *testing.T) {
		r := newRecord[string]("ted")
		r.Add(1, "hand")
		require.False(t, r.Add(2, "foot"))
		require.Equal(t, 2, r.Count())
	})

	t.Run("adding a present primitive is idempotent", func(t *testing.T) {
		r := newRecord[string]("ted")
		r.Add(1, "hand")
		require.False(t, r.Add(1, "foot"))
		require.Equal(t, 1, r.Count())
		require.Equal(t, "hand", r.primitives[1])
	})

	t.Run("zero value record accepts primitives", func(t *testing.T) {
		var r Record[string, string]
		require.True(t, r.Add(42, "head"))
		require.True(t, r.Has(42))
	})
}

func TestRecordRemove(t *testing.T) {
	t.Run("removing last primitive is an edge", func(t *testing.T) {
		r := newRecord[string]("ted")
		r.Add(1, "hand")
		r.Add(2, "foot")

		require.False(t, r.Remove(1))
		require.True(t, r.Remove(2))
		require.Zero(t, r.Count())
	})

	t.Run("removing an absent primitive is idempotent", func(t *testing.T) {
		r := newRecord[string]("ted")
		require.False(t, r.Remove(1))

		r.Add(1, "hand")
		require.False(t, r.Remove(2))
		require.Equal(t, 1, r.Count())
	})
}

func TestRecordPrimitiveIDs(t *testing.T) {
	r := newRecord[string]("ted")
	r.Add(3, "head")
	r.Add(1, "hand")
	r.Add(2, "foot")

	require.Equal(t, []PrimitiveID{1, 2, 3}, r.PrimitiveIDs())
}
