package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// Output formats.
const (
	FormatAuto     = "auto"
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted --output values.
var Formats = []string{FormatAuto, FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// resolveFormat turns auto into table on a terminal and markdown otherwise.
func resolveFormat(w io.Writer, format string) string {
	if format != FormatAuto && format != "" {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatTable
	}
	return FormatMarkdown
}

// grid is a rendered table of formatted cells.
type grid struct {
	Headers []string
	Rows    [][]string
	// Caption is printed under the table in table mode.
	Caption string
}

func renderGrid(w io.Writer, g grid, format string, jsonValue any) error {
	switch resolveFormat(w, format) {
	case FormatJSON:
		return renderJSON(w, jsonValue)
	case FormatCSV:
		_, err := fmt.Fprintln(w, newWriter(g).RenderCSV())
		return err
	case FormatMarkdown:
		if len(g.Rows) == 0 {
			_, err := fmt.Fprintln(w, "(0 rows)")
			return err
		}
		_, err := fmt.Fprintln(w, newWriter(g).RenderMarkdown())
		return err
	default:
		if len(g.Rows) == 0 {
			_, err := fmt.Fprintln(w, "(0 rows)")
			return err
		}
		t := newWriter(g)
		t.SetStyle(table.StyleLight)
		if g.Caption != "" {
			t.SetCaption(g.Caption)
		}
		_, err := fmt.Fprintln(w, t.Render())
		return err
	}
}

func newWriter(g grid) table.Writer {
	t := table.NewWriter()
	header := make(table.Row, len(g.Headers))
	for i, h := range g.Headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, r := range g.Rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		t.AppendRow(row)
	}
	return t
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
