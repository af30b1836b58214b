package arscedit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func landConfig() Config {
	raw := make([]byte, 28)
	raw[cfgOrientation] = 2
	return NewConfig(raw)
}

// buildSampleTable emits a small two-type table:
//
//	0x7f010000 string/greeting  "Hello" (default), "Hello landscape" (land)
//	0x7f010001 string/farewell  "shared between entries" (default only)
//	0x7f020000 style/app_theme  map{parent=0, string@7f010000 -> ref 7f010001,
//	                                 0x01010000 -> "shared between entries"}
//
// plus one never-referenced global string for pool compaction tests.
func buildSampleTable(t *testing.T) []byte {
	t.Helper()

	gp := NewStringPoolBuilder(true)
	hello := gp.Add("Hello")
	land := gp.Add("Hello landscape")
	shared := gp.Add("shared between entries")
	gp.Add("never referenced")

	ts := NewStringPoolBuilder(true)
	ts.Add("string")
	ts.Add("style")

	ks := NewStringPoolBuilder(true)
	kGreeting := ks.Add("greeting")
	kFarewell := ks.Add("farewell")
	kTheme := ks.Add("app_theme")

	pb := &PackageBuilder{
		ID:          0x7f,
		Name:        "com.example.app",
		TypeStrings: PoolSource{Builder: ts},
		KeyStrings:  PoolSource{Builder: ks},
	}

	d1 := NewTypeDefiner(1, []uint32{0, 0x0004})
	e0 := NewScalarEntry(uint32(kGreeting), ResValue{DataType: DataTypeString, Data: uint32(hello)}).appendTo(nil)
	e1 := NewScalarEntry(uint32(kFarewell), ResValue{DataType: DataTypeString, Data: uint32(shared)}).appendTo(nil)
	require.NoError(t, d1.AddConfig(DefaultConfig(), [][]byte{e0, e1}))
	e0l := NewScalarEntry(uint32(kGreeting), ResValue{DataType: DataTypeString, Data: uint32(land)}).appendTo(nil)
	require.NoError(t, d1.AddConfig(landConfig(), [][]byte{e0l, nil}))
	pb.AddTypeDefiner(d1)

	d2 := NewTypeDefiner(2, []uint32{0})
	m := NewMapEntry(uint32(kTheme), 0, []MapItem{
		{Name: MakeResID(0x7f, 1, 0), Value: ResValue{DataType: DataTypeReference, Data: uint32(MakeResID(0x7f, 1, 1))}},
		{Name: 0x01010000, Value: ResValue{DataType: DataTypeString, Data: uint32(shared)}},
	}).appendTo(nil)
	require.NoError(t, d2.AddConfig(DefaultConfig(), [][]byte{m}))
	pb.AddTypeDefiner(d2)

	b := &TableBuilder{GlobalPool: PoolSource{Builder: gp}}
	b.AddPackage(pb)
	out, err := b.Build()
	require.NoError(t, err)
	return out
}

func parseSampleTable(t *testing.T) *ResourceTable {
	t.Helper()
	table, err := ParseResourceTable(buildSampleTable(t))
	require.NoError(t, err)
	return table
}

func entryString(t *testing.T, table *ResourceTable, raw []byte) string {
	t.Helper()
	e, err := parseEntry(raw)
	require.NoError(t, err)
	require.NotNil(t, e.Value)
	require.EqualValues(t, DataTypeString, e.Value.DataType)
	s, err := table.GlobalPool.String(int(e.Value.Data))
	require.NoError(t, err)
	return s
}

func TestParseResourceTable(t *testing.T) {
	table := parseSampleTable(t)

	require.Len(t, table.Packages, 1)
	pkg := table.Packages[0]
	require.EqualValues(t, 0x7f, pkg.ID)
	require.Equal(t, "com.example.app", pkg.Name)
	require.Len(t, pkg.Types, 2)

	name, err := pkg.TypeStrings.String(0)
	require.NoError(t, err)
	require.Equal(t, "string", name)

	occs := table.EntriesForID(MakeResID(0x7f, 1, 0))
	require.Len(t, occs, 2)
	require.Equal(t, "default", occs[0].Config.Qualifiers())
	require.Equal(t, "land", occs[1].Config.Qualifiers())
	require.Equal(t, "Hello", entryString(t, table, occs[0].Bytes))
	require.Equal(t, "Hello landscape", entryString(t, table, occs[1].Bytes))

	raw, err := table.GetEntryForConfig(MakeResID(0x7f, 1, 1), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "shared between entries", entryString(t, table, raw))

	// Absent under land.
	_, err = table.GetEntryForConfig(MakeResID(0x7f, 1, 1), landConfig())
	require.ErrorIs(t, err, ErrNotFound)

	raw, err = table.GetEntryForConfig(MakeResID(0x7f, 2, 0), DefaultConfig())
	require.NoError(t, err)
	e, err := parseEntry(raw)
	require.NoError(t, err)
	require.True(t, e.IsComplex())
	require.Len(t, e.Items, 2)
	require.Equal(t, MakeResID(0x7f, 1, 0), e.Items[0].Name)
	require.EqualValues(t, MakeResID(0x7f, 1, 1), e.Items[0].Value.Data)
}

func TestParseResourceTableRejectsGarbage(t *testing.T) {
	_, err := ParseResourceTable([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrSizeOverrun)

	data := buildSampleTable(t)
	putU16(data, 0, chunkStringPool)
	_, err = ParseResourceTable(data)
	require.ErrorIs(t, err, ErrBadChunkType)
}

func TestTypeSpecFlags(t *testing.T) {
	table := parseSampleTable(t)
	ti := table.Packages[0].Types[0]
	require.Equal(t, []uint32{0, 0x0004}, ti.Spec.Flags)
	require.Equal(t, 2, ti.Spec.EntryCount)
}

// A package whose header offsets match no string pool chunk leaves the
// type and key pools unset; later stages dereference them, so the
// parser has to reject it.
func TestParsePackageWithoutPoolsFails(t *testing.T) {
	var pkg []byte
	pkg = appendU16(pkg, chunkTablePackage)
	pkg = appendU16(pkg, packageHeaderSize)
	pkg = appendU32(pkg, packageHeaderSize)
	pkg = appendU32(pkg, 0x7f)
	pkg = append(pkg, encodePackageName("com.example.app")...)
	pkg = appendU32(pkg, 0) // typeStrings
	pkg = appendU32(pkg, 0)
	pkg = appendU32(pkg, 0) // keyStrings
	pkg = appendU32(pkg, 0)
	pkg = appendU32(pkg, 0) // typeIdOffset

	gp, err := NewStringPoolBuilder(true).Build()
	require.NoError(t, err)

	var data []byte
	data = appendU16(data, chunkTable)
	data = appendU16(data, tableHeaderSize)
	data = appendU32(data, uint32(tableHeaderSize+len(gp)+len(pkg)))
	data = appendU32(data, 1)
	data = append(data, gp...)
	data = append(data, pkg...)

	_, err = ParseResourceTable(data)
	require.ErrorIs(t, err, ErrBadHeader)
}

func TestPackageLookup(t *testing.T) {
	table := parseSampleTable(t)

	pkg, err := table.Package(0x7f)
	require.NoError(t, err)
	require.Equal(t, "com.example.app", pkg.Name)

	_, err = table.Package(0x02)
	require.ErrorIs(t, err, ErrNotFound)
}
