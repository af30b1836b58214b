package arscedit

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

const maxApkEntrySize = 256 * 1024 * 1024

// ReadApkFile extracts one file from an APK archive.
func ReadApkFile(apkPath, name string) ([]byte, error) {
	zr, err := OpenZip(apkPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", apkPath)
	}
	defer zr.Close()

	zf := zr.File[name]
	if zf == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s in %s", name, apkPath)
	}
	return zf.ReadAll(maxApkEntrySize)
}

// LoadResourceData reads a resources.arsc, either a raw file or the one
// inside an APK, picked by the path suffix.
func LoadResourceData(path string) ([]byte, error) {
	if strings.HasSuffix(strings.ToLower(path), ".apk") {
		return ReadApkFile(path, "resources.arsc")
	}
	return os.ReadFile(path)
}

// LoadBinaryXml reads a compiled XML file, either raw or the manifest
// of an APK.
func LoadBinaryXml(path string) ([]byte, error) {
	if strings.HasSuffix(strings.ToLower(path), ".apk") {
		return ReadApkFile(path, "AndroidManifest.xml")
	}
	return os.ReadFile(path)
}

// LoadResourceTable reads and parses a resources.arsc from path.
func LoadResourceTable(path string) (*ResourceTable, error) {
	data, err := LoadResourceData(path)
	if err != nil {
		return nil, err
	}
	return ParseResourceTable(data)
}
