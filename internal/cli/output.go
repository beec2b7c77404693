package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// rowPrinter writes result rows either aligned for a terminal or as
// tab-separated values for pipes and files.
type rowPrinter struct {
	out     io.Writer
	aligned bool
	header  bool
}

// newRowPrinter aligns output when stdout is a terminal.
func newRowPrinter(out io.Writer) *rowPrinter {
	aligned := false
	if f, ok := out.(*os.File); ok {
		aligned = term.IsTerminal(int(f.Fd()))
	}
	return &rowPrinter{out: out, aligned: aligned, header: true}
}

// PrintPage prints a page heading and its rows.
func (p *rowPrinter) PrintPage(page int, rows []tablekit.Row) error {
	if p.aligned {
		if _, err := fmt.Fprintf(p.out, "-- page %d (%d rows)\n", page, len(rows)); err != nil {
			return err
		}
		return p.PrintRows(rows, true)
	}
	// The TSV header is written once for the whole stream.
	err := p.PrintRows(rows, p.header)
	if len(rows) > 0 {
		p.header = false
	}
	return err
}

// PrintResultSet prints every row of rs with its column header.
func (p *rowPrinter) PrintResultSet(rs tablekit.ResultSet) error {
	if len(rs.Rows) == 0 {
		if len(rs.Columns) == 0 {
			return nil
		}
		_, err := fmt.Fprintln(p.out, "(0 rows)")
		return err
	}
	return p.PrintRows(rs.Rows, true)
}

// PrintRows prints rows, optionally preceded by their column names.
func (p *rowPrinter) PrintRows(rows []tablekit.Row, header bool) error {
	if len(rows) == 0 {
		return nil
	}

	w := p.out
	var tw *tabwriter.Writer
	if p.aligned {
		tw = tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
		w = tw
	}

	if header {
		names := make([]string, 0, rows[0].Len())
		for _, c := range rows[0].Columns() {
			names = append(names, c.Name)
		}
		if _, err := fmt.Fprintln(w, strings.Join(names, "\t")); err != nil {
			return err
		}
	}

	for _, row := range rows {
		cells := make([]string, 0, row.Len())
		for _, v := range row.Values() {
			cells = append(cells, v.String())
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}

	if tw != nil {
		return tw.Flush()
	}
	return nil
}
