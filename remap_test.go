package arscedit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebuildTableIdentity(t *testing.T) {
	original := buildSampleTable(t)
	table, err := ParseResourceTable(original)
	require.NoError(t, err)

	out, err := RebuildTable(table, TableEdit{})
	require.NoError(t, err)
	require.True(t, bytes.Equal(original, out))
}

func TestRebuildTableCompactPools(t *testing.T) {
	table := parseSampleTable(t)
	require.Equal(t, 4, table.GlobalPool.Count())

	out, err := RebuildTable(table, TableEdit{CompactPools: true})
	require.NoError(t, err)
	require.Less(t, len(out), len(table.Data))

	rebuilt, err := ParseResourceTable(out)
	require.NoError(t, err)
	require.Equal(t, 3, rebuilt.GlobalPool.Count())
	_, err = rebuilt.GlobalPool.Find("never referenced")
	require.ErrorIs(t, err, ErrNotFound)

	// Every projected reference still resolves to the same string.
	raw, err := rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 0), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello", entryString(t, rebuilt, raw))
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 0), landConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello landscape", entryString(t, rebuilt, raw))
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 1), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "shared between entries", entryString(t, rebuilt, raw))

	// Key names survived the key pool projection.
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 2, 0), DefaultConfig())
	require.NoError(t, err)
	e, err := parseEntry(raw)
	require.NoError(t, err)
	key, err := rebuilt.Packages[0].KeyStrings.String(int(e.KeyIndex))
	require.NoError(t, err)
	require.Equal(t, "app_theme", key)
}

func TestRebuildTableDelete(t *testing.T) {
	table := parseSampleTable(t)

	out, err := RebuildTable(table, TableEdit{
		Deleted:      map[ResID]bool{MakeResID(0x7f, 2, 0): true},
		CompactPools: true,
	})
	require.NoError(t, err)

	rebuilt, err := ParseResourceTable(out)
	require.NoError(t, err)

	// The style type had a single entry; deleting it drops the whole
	// type, spec included.
	require.Len(t, rebuilt.Packages[0].Types, 1)
	require.EqualValues(t, 1, rebuilt.Packages[0].Types[0].ID)
	require.Empty(t, rebuilt.EntriesForID(MakeResID(0x7f, 2, 0)))

	// Its key string is no longer referenced and got compacted away.
	_, err = rebuilt.Packages[0].KeyStrings.Find("app_theme")
	require.ErrorIs(t, err, ErrNotFound)

	// Survivors are intact.
	raw, err := rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 0), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello", entryString(t, rebuilt, raw))
}

func TestRebuildTableDeleteOneOfMany(t *testing.T) {
	table := parseSampleTable(t)

	out, err := RebuildTable(table, TableEdit{
		Deleted: map[ResID]bool{MakeResID(0x7f, 1, 0): true},
	})
	require.NoError(t, err)

	rebuilt, err := ParseResourceTable(out)
	require.NoError(t, err)

	// The slot stays, the value is gone in every configuration.
	ti := rebuilt.Packages[0].Types[0]
	require.Equal(t, 2, ti.Spec.EntryCount)
	require.Empty(t, rebuilt.EntriesForID(MakeResID(0x7f, 1, 0)))

	raw, err := rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 1), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "shared between entries", entryString(t, rebuilt, raw))

	// The land configuration only held the deleted entry, so it is
	// dropped entirely.
	require.Len(t, ti.Types, 1)
}

func TestRebuildTableRenumber(t *testing.T) {
	table := parseSampleTable(t)

	// Swap the two string entries and retarget every reference.
	idMap := map[ResID]ResID{
		MakeResID(0x7f, 1, 0): MakeResID(0x7f, 1, 1),
		MakeResID(0x7f, 1, 1): MakeResID(0x7f, 1, 0),
	}
	out, err := RebuildTable(table, TableEdit{IDMap: idMap})
	require.NoError(t, err)

	rebuilt, err := ParseResourceTable(out)
	require.NoError(t, err)

	raw, err := rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 1), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello", entryString(t, rebuilt, raw))
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 0), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "shared between entries", entryString(t, rebuilt, raw))

	// The land value followed its entry to the new slot.
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, 1), landConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello landscape", entryString(t, rebuilt, raw))

	// Spec flags moved with their entries.
	require.Equal(t, []uint32{0x0004, 0}, rebuilt.Packages[0].Types[0].Spec.Flags)

	// Map item names and reference values inside the style entry were
	// rewritten through the same map.
	raw, err = rebuilt.GetEntryForConfig(MakeResID(0x7f, 2, 0), DefaultConfig())
	require.NoError(t, err)
	e, err := parseEntry(raw)
	require.NoError(t, err)
	require.Equal(t, MakeResID(0x7f, 1, 1), e.Items[0].Name)
	require.EqualValues(t, MakeResID(0x7f, 1, 0), e.Items[0].Value.Data)
	// Framework attribute names pass through untouched.
	require.EqualValues(t, 0x01010000, e.Items[1].Name)
}

func TestRebuildTableRenumberOutOfRange(t *testing.T) {
	table := parseSampleTable(t)
	_, err := RebuildTable(table, TableEdit{
		IDMap: map[ResID]ResID{MakeResID(0x7f, 1, 0): MakeResID(0x7f, 1, 9)},
	})
	require.Error(t, err)
}

// A styled string with an empty span list still occupies a style slot;
// rebuilding must not demote it to a plain string, or the styled-first
// invariant breaks on the next styled entry.
func TestRebuildPoolKeepsZeroSpanStyles(t *testing.T) {
	b := NewStringPoolBuilder(true)
	_, err := b.AddStyled("no spans", nil)
	require.NoError(t, err)
	_, err = b.AddStyled("one span", []Span{{Name: 2, First: 0, Last: 2}})
	require.NoError(t, err)
	b.Add("b")

	p := poolFromBuilder(t, b)

	nb, err := rebuildPool(p, identityProjection(p.Count()))
	require.NoError(t, err)
	rebuilt := poolFromBuilder(t, nb)

	require.Equal(t, 3, rebuilt.Count())
	require.Equal(t, 2, rebuilt.StyleCount())

	spans, err := rebuilt.Spans(0)
	require.NoError(t, err)
	require.Empty(t, spans)
	spans, err = rebuilt.Spans(1)
	require.NoError(t, err)
	require.Equal(t, []Span{{Name: 2, First: 0, Last: 2}}, spans)

	s, err := rebuilt.String(0)
	require.NoError(t, err)
	require.Equal(t, "no spans", s)
}

func TestRebuildTableCanonical(t *testing.T) {
	same := scalarBytes(0, DataTypeIntDec, 7)
	d := NewTypeDefiner(1, []uint32{0, 0})
	require.NoError(t, d.AddConfig(DefaultConfig(), [][]byte{same, same}))

	table, err := ParseResourceTable(onePackageTable(t, d))
	require.NoError(t, err)

	out, err := RebuildTable(table, TableEdit{CanonicalEntries: true})
	require.NoError(t, err)
	require.Equal(t, len(table.Data)-len(same), len(out))

	rebuilt, err := ParseResourceTable(out)
	require.NoError(t, err)
	for i := uint16(0); i < 2; i++ {
		raw, err := rebuilt.GetEntryForConfig(MakeResID(0x7f, 1, i), DefaultConfig())
		require.NoError(t, err)
		e, err := parseEntry(raw)
		require.NoError(t, err)
		require.EqualValues(t, 7, e.Value.Data)
	}
}
