package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin"
	"github.com/buger/jsonparser"

	"github.com/avast/arscedit"
)

var (
	file              = kingpin.Flag("file", "resources.arsc or APK to analyze").Short('f').Required().String()
	resIDMap          = kingpin.Flag("resid", "JSON file mapping hex resource IDs to names").String()
	onlyID            = kingpin.Flag("id", "only print this resource ID (hex)").String()
	hideUninteresting = kingpin.Flag("hide-uninteresting", "skip resources with no bytes of their own").Bool()
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
	table, err := arscedit.LoadResourceTable(*file)
	if err != nil {
		return err
	}

	var names map[arscedit.ResID]string
	if *resIDMap != "" {
		if names, err = loadNames(*resIDMap); err != nil {
			return err
		}
	}

	var filter arscedit.ResID
	if *onlyID != "" {
		id, err := parseResID(*onlyID)
		if err != nil {
			return err
		}
		filter = id
	}

	rows, err := arscedit.AttributeTableSizes(table, names)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"ID", "Type", "Name", "Private Size", "Shared Size", "Proportional Size", "Config Count", "Configs"}); err != nil {
		return err
	}
	for _, r := range rows {
		if filter != 0 && r.ID != filter {
			continue
		}
		if *hideUninteresting && r.PrivateSize == 0 && r.SharedSize == 0 {
			continue
		}
		rec := []string{
			r.ID.String(),
			r.Type,
			r.Name,
			strconv.Itoa(r.PrivateSize),
			strconv.Itoa(r.SharedSize),
			strconv.FormatFloat(r.Proportional, 'f', 2, 64),
			strconv.Itoa(len(r.Configs)),
			strings.Join(r.Configs, " "),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func loadNames(path string) (map[arscedit.ResID]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	names := make(map[arscedit.ResID]string)
	err = jsonparser.ObjectEach(data, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
		if vt != jsonparser.String {
			return fmt.Errorf("name of %q is not a string", key)
		}
		id, err := parseResID(string(key))
		if err != nil {
			return err
		}
		names[id] = string(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func parseResID(s string) (arscedit.ResID, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid resource ID %q: %v", s, err)
	}
	return arscedit.ResID(v), nil
}
