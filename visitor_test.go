package arscedit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingVisitor struct {
	BaseTableVisitor
	packages, specs, types, entries, mapEntries, mapItems int
}

func (c *countingVisitor) VisitPackage(*Package) bool             { c.packages++; return true }
func (c *countingVisitor) VisitTypeSpec(*Package, *TypeSpec) bool { c.specs++; return true }
func (c *countingVisitor) VisitType(*Package, *Type) bool         { c.types++; return true }
func (c *countingVisitor) VisitEntry(*Package, *Type, int, Entry) bool {
	c.entries++
	return true
}
func (c *countingVisitor) VisitMapEntry(*Package, *Type, int, Entry) bool {
	c.mapEntries++
	return true
}
func (c *countingVisitor) VisitMapItem(*Package, *Type, int, MapItem) bool {
	c.mapItems++
	return true
}

func TestWalkTable(t *testing.T) {
	table := parseSampleTable(t)

	v := &countingVisitor{}
	done, err := WalkTable(table, v)
	require.NoError(t, err)
	require.True(t, done)

	require.Equal(t, 1, v.packages)
	require.Equal(t, 2, v.specs)
	require.Equal(t, 3, v.types) // string default+land, style default
	require.Equal(t, 3, v.entries)
	require.Equal(t, 1, v.mapEntries)
	require.Equal(t, 2, v.mapItems)
}

type stopAtFirstType struct {
	BaseTableVisitor
	seen int
}

func (s *stopAtFirstType) VisitType(*Package, *Type) bool {
	s.seen++
	return false
}

func TestWalkTableShortCircuits(t *testing.T) {
	table := parseSampleTable(t)

	v := &stopAtFirstType{}
	done, err := WalkTable(table, v)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 1, v.seen)
}

type refCounter struct {
	BaseTableVisitor
	keyRefs, globalRefs int
}

func (c *refCounter) VisitKeyStringRef(*Package, Ref) bool { c.keyRefs++; return true }
func (c *refCounter) VisitGlobalStringRef(Ref) bool        { c.globalRefs++; return true }

func TestWalkStringRefs(t *testing.T) {
	table := parseSampleTable(t)

	v := &refCounter{}
	done, err := WalkStringRefs(table, v)
	require.NoError(t, err)
	require.True(t, done)

	// One key ref per entry occurrence: two string entries, the land
	// specialization and the style map.
	require.Equal(t, 4, v.keyRefs)
	// One global ref per TYPE_STRING value: three scalars plus one map
	// item.
	require.Equal(t, 4, v.globalRefs)
}

type globalRefRewriter struct {
	BaseTableVisitor
	from, to uint32
}

func (r *globalRefRewriter) VisitKeyStringRef(*Package, Ref) bool { return true }

func (r *globalRefRewriter) VisitGlobalStringRef(ref Ref) bool {
	if ref.Get() == r.from {
		ref.Set(r.to)
	}
	return true
}

// Refs are mutable windows into the table buffer; rewriting one
// redirects the entry to another pool string in place.
func TestStringRefRewriteInPlace(t *testing.T) {
	data := buildSampleTable(t)
	table, err := ParseResourceTable(data)
	require.NoError(t, err)

	hello, err := table.GlobalPool.Find("Hello")
	require.NoError(t, err)
	shared, err := table.GlobalPool.Find("shared between entries")
	require.NoError(t, err)

	done, err := WalkStringRefs(table, &globalRefRewriter{from: uint32(shared), to: uint32(hello)})
	require.NoError(t, err)
	require.True(t, done)

	reparsed, err := ParseResourceTable(data)
	require.NoError(t, err)
	raw, err := reparsed.GetEntryForConfig(MakeResID(0x7f, 1, 1), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "Hello", entryString(t, reparsed, raw))
}
