package arscedit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetXmlAttribute(t *testing.T) {
	data := buildTestManifest(t)
	before := len(data)

	changed, err := SetXmlAttribute(data, "manifest", attrVersionCode, DataTypeIntDec, 42)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, before, len(data))

	d, err := ParseXmlDocument(data)
	require.NoError(t, err)
	ts := findTag(t, d, "manifest")
	vc := attrByResID(t, d, ts, attrVersionCode)
	require.EqualValues(t, 42, vc.Value.Data)

	// Everything else survived untouched.
	pkg := attrByName(t, d, ts, "package")
	name, err := d.Pool.String(int(pkg.Value.Data))
	require.NoError(t, err)
	require.Equal(t, testPackageName, name)
}

func TestSetXmlAttributeMissing(t *testing.T) {
	data := buildTestManifest(t)
	changed, err := SetXmlAttribute(data, "manifest", attrCompileSdk, DataTypeIntDec, 31)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = SetXmlAttribute(data, "application", attrVersionCode, DataTypeIntDec, 1)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRemapXmlResourceIDs(t *testing.T) {
	data := buildTestManifest(t)

	// Turn versionCode into a reference first so value remapping has
	// something to chew on.
	changed, err := SetXmlAttribute(data, "manifest", attrVersionCode, DataTypeReference, uint32(MakeResID(0x7f, 1, 0)))
	require.NoError(t, err)
	require.True(t, changed)

	idMap := map[uint32]uint32{attrVersionCode: 0x0101021c}
	idMap[uint32(MakeResID(0x7f, 1, 0))] = uint32(MakeResID(0x7f, 5, 9))
	changed, err = RemapXmlResourceIDs(data, idMap)
	require.NoError(t, err)
	require.True(t, changed)

	d, err := ParseXmlDocument(data)
	require.NoError(t, err)
	require.Equal(t, []uint32{0x0101021c}, d.ResourceIDs)

	ts := findTag(t, d, "manifest")
	vc := attrByResID(t, d, ts, 0x0101021c)
	require.EqualValues(t, DataTypeReference, vc.Value.DataType)
	require.EqualValues(t, MakeResID(0x7f, 5, 9), vc.Value.Data)
}

func TestRemapXmlResourceIDsNoChange(t *testing.T) {
	data := buildTestManifest(t)
	changed, err := RemapXmlResourceIDs(data, map[uint32]uint32{0x7f999999: 0x7f000001})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRebuildXmlPool(t *testing.T) {
	data := buildTestManifest(t)

	out, changed, err := RebuildXmlPool(data, map[string]string{
		testPackageName: "com.example.other",
	})
	require.NoError(t, err)
	require.True(t, changed)

	d, err := ParseXmlDocument(out)
	require.NoError(t, err)
	ts := findTag(t, d, "manifest")
	pkg := attrByName(t, d, ts, "package")
	name, err := d.Pool.String(int(pkg.Value.Data))
	require.NoError(t, err)
	require.Equal(t, "com.example.other", name)

	// The rest of the document is intact.
	vc := attrByResID(t, d, ts, attrVersionCode)
	require.EqualValues(t, 7, vc.Value.Data)
	require.Equal(t, []uint32{attrVersionCode}, d.ResourceIDs)
}

func TestRebuildXmlPoolNoChange(t *testing.T) {
	data := buildTestManifest(t)
	out, changed, err := RebuildXmlPool(data, map[string]string{"absent": "other"})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, data, out)
}

func TestAddXmlAttribute(t *testing.T) {
	data := buildTestManifest(t)

	out, err := AddXmlAttribute(data, "manifest", attrCompileSdk, "compileSdkVersion", androidNamespace, DataTypeIntDec, 31)
	require.NoError(t, err)

	d, err := ParseXmlDocument(out)
	require.NoError(t, err)

	// The name string sits right after the old side array so the two
	// arrays keep lining up.
	require.Equal(t, []uint32{attrVersionCode, attrCompileSdk}, d.ResourceIDs)
	name, err := d.Pool.String(1)
	require.NoError(t, err)
	require.Equal(t, "compileSdkVersion", name)

	ts := findTag(t, d, "manifest")
	require.Len(t, ts.Attrs, 3)

	added := attrByResID(t, d, ts, attrCompileSdk)
	require.EqualValues(t, DataTypeIntDec, added.Value.DataType)
	require.EqualValues(t, 31, added.Value.Data)
	ns, err := d.Pool.String(int(added.Namespace))
	require.NoError(t, err)
	require.Equal(t, androidNamespace, ns)

	// ID-carrying attributes stay sorted by resource ID, the ID-less
	// package attribute stays last.
	require.EqualValues(t, attrVersionCode, d.AttrResID(ts.Attrs[0].Name))
	require.EqualValues(t, attrCompileSdk, d.AttrResID(ts.Attrs[1].Name))
	pkg := attrByName(t, d, ts, "package")
	require.Same(t, &ts.Attrs[2], pkg)

	// Shifted references still resolve.
	vc := attrByResID(t, d, ts, attrVersionCode)
	require.EqualValues(t, 7, vc.Value.Data)
	pkgName, err := d.Pool.String(int(pkg.Value.Data))
	require.NoError(t, err)
	require.Equal(t, testPackageName, pkgName)
	uri, err := d.Pool.String(int(d.Nodes[0].NsStart.URI))
	require.NoError(t, err)
	require.Equal(t, androidNamespace, uri)
}

func TestAddXmlAttributeExistingID(t *testing.T) {
	data := buildTestManifest(t)

	// The resource ID is already in the side array; its pool slot is
	// reused and nothing shifts.
	out, err := AddXmlAttribute(data, "manifest", attrVersionCode, "versionCode", androidNamespace, DataTypeIntDec, 9)
	require.NoError(t, err)

	d, err := ParseXmlDocument(out)
	require.NoError(t, err)
	require.Equal(t, []uint32{attrVersionCode}, d.ResourceIDs)

	ts := findTag(t, d, "manifest")
	require.Len(t, ts.Attrs, 3)
}

func TestAddXmlAttributeMissingTag(t *testing.T) {
	data := buildTestManifest(t)
	_, err := AddXmlAttribute(data, "application", attrCompileSdk, "compileSdkVersion", androidNamespace, DataTypeIntDec, 31)
	require.ErrorIs(t, err, ErrNotFound)
}
