package catalog

// seeds.go - CSV seed loading

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// seedTable is one object type read from <object type>.csv.
type seedTable struct {
	name    string
	columns []string
	rows    [][]string
}

// readSeeds reads every CSV file of dir in name order and returns the tables
// together with a content hash over file names and bytes.
func readSeeds(dir string) ([]seedTable, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	digest := xxhash.New()
	tables := make([]seedTable, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read seed %s: %w", name, err)
		}
		_, _ = digest.WriteString(name)
		_, _ = digest.Write(data)

		table, err := parseSeed(strings.TrimSuffix(name, ".csv"), strings.NewReader(string(data)))
		if err != nil {
			return nil, "", fmt.Errorf("failed to load seed %s: %w", name, err)
		}
		tables = append(tables, table)
	}

	return tables, fmt.Sprintf("%016x", digest.Sum64()), nil
}

func parseSeed(name string, r io.Reader) (seedTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return seedTable{}, fmt.Errorf("missing header row")
	}
	if err != nil {
		return seedTable{}, err
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
		if header[i] == "" {
			return seedTable{}, fmt.Errorf("column %d has no name", i+1)
		}
	}

	table := seedTable{name: name, columns: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return seedTable{}, err
		}
		table.rows = append(table.rows, record)
	}
	return table, nil
}

// ParseCell converts a raw CSV cell to a property value.
//
//	""            -> nil
//	True / False  -> bool
//	42            -> int64
//	1.5e3         -> float64
//	[1;2.5;True]  -> []any of parsed cells
//
// Anything else is kept as a string.
func ParseCell(s string) any {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return nil
	case "True", "true":
		return true
	case "False", "false":
		return false
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}
		}
		parts := strings.Split(inner, ";")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = ParseCell(p)
		}
		return out
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
