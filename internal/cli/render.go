package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/koltyakov/fbxos/internal/entity"
)

const (
	colorAccent = "#8be9fd"
	colorMuted  = "#6272a4"
)

var (
	keyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
)

// renderPairs prints aligned "key: value" lines.
func renderPairs(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	label := keyStyle.Width(width + 1)
	for _, r := range rows {
		fmt.Fprintln(w, label.Render(r[0]+":"), r[1])
	}
}

// renderCollection prints entities as a table, or as tab-separated lines
// when plain is set.
func renderCollection(w io.Writer, kind *entity.Kind, items []*entity.Entity, plain bool) {
	headers := make([]string, 0, len(kind.Columns))
	for _, c := range kind.Columns {
		headers = append(headers, c.Name)
	}
	rows := make([][]string, 0, len(items))
	for _, e := range items {
		row := make([]string, 0, len(kind.Columns))
		for _, c := range kind.Columns {
			row = append(row, c.FormatValue(e.Get(c.Name)))
		}
		rows = append(rows, row)
	}
	if plain {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d %s\n", len(items), kind.Name)
}

// renderEntity prints one entity as key/value pairs, followed by its
// sub-records.
func renderEntity(w io.Writer, e *entity.Entity) {
	kind := e.Kind()
	rows := make([][2]string, 0, len(kind.Columns)+1)
	for _, c := range kind.Columns {
		rows = append(rows, [2]string{c.Name, c.FormatValue(e.Get(c.Name))})
	}
	rows = append(rows, [2]string{"source", e.Source + " (" + e.Provenance.String() + ")"})
	renderPairs(w, rows)
	for _, ch := range kind.Children {
		if children := e.Children(ch.Kind); len(children) > 0 {
			fmt.Fprintln(w)
			renderCollection(w, ch.Kind, children, false)
		}
	}
}

// renderMap prints a decoded JSON object with sorted keys; nested values
// are shown as compact JSON.
func renderMap(w io.Writer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][2]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, [2]string{k, displayValue(m[k])})
	}
	renderPairs(w, rows)
}

func displayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	}
	return fmt.Sprint(v)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
