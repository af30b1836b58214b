package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin"

	"github.com/avast/arscedit"
)

var (
	file   = kingpin.Arg("file", "compiled binary XML file to edit in place").Required().String()
	tag    = kingpin.Arg("tag", "element name to edit").Required().String()
	attrID = kingpin.Arg("attr-resid", "attribute resource ID (hex)").Required().String()
	data   = kingpin.Arg("data", "new attribute data word (0x-prefixed for hex)").Required().String()

	dataType = kingpin.Flag("type", "attribute data type byte").Default("0x10").String()
	addName  = kingpin.Flag("add-name", "attribute name to insert when the element lacks it").String()
	addNs    = kingpin.Flag("add-ns", "namespace URI of the inserted attribute").Default("http://schemas.android.com/apk/res/android").String()
)

func main() {
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	attrResID, err := parseWord(*attrID)
	if err != nil {
		return err
	}
	dataWord, err := parseWord(*data)
	if err != nil {
		return err
	}
	typeWord, err := parseWord(*dataType)
	if err != nil {
		return err
	}
	if typeWord > 0xFF {
		return fmt.Errorf("data type 0x%x does not fit a byte", typeWord)
	}

	buf, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	changed, err := arscedit.SetXmlAttribute(buf, *tag, attrResID, uint8(typeWord), dataWord)
	if err != nil {
		return err
	}
	if changed {
		// Same size, overwrite in place.
		return os.WriteFile(*file, buf, 0644)
	}

	if *addName == "" {
		return fmt.Errorf("element %q has no attribute 0x%08x; pass --add-name to insert it", *tag, attrResID)
	}
	out, err := arscedit.AddXmlAttribute(buf, *tag, attrResID, *addName, *addNs, uint8(typeWord), dataWord)
	if err != nil {
		return err
	}
	return os.WriteFile(*file, out, 0644)
}

func parseWord(s string) (uint32, error) {
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %v", s, err)
	}
	return uint32(v), nil
}
