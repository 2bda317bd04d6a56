// Package summary renders run results as console tables.
package summary

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// Alignment selects how a column is aligned.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table renders rows under headers with a rounded border. Rows shorter than
// headers are padded with empty cells.
func Table(headers []string, rows [][]string, aligns []Alignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// Render formats a run summary: a header line followed by one table row per
// slot.
func Render(s domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s %s", s.RunID, s.State)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(&b, ": %d staged, %d archived\n", s.Staged, s.Archived())
	if s.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", s.Err)
	}

	rows := make([][]string, 0, len(s.Slots))
	for _, r := range s.Slots {
		artifact := "-"
		if r.Artifact != "" {
			artifact = filepath.Base(r.Artifact)
		}
		rows = append(rows, []string{
			r.Slot.ID(),
			r.Date.Format(time.DateOnly),
			string(r.Outcome),
			strconv.Itoa(r.Sources),
			strconv.Itoa(r.Lines),
			strconv.Itoa(r.Dropped),
			artifact,
			FormatBytes(r.Size),
		})
	}
	b.WriteString(Table(
		[]string{"Slot", "Date", "Outcome", "Files", "Lines", "NIL", "Artifact", "Size"},
		rows,
		[]Alignment{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignLeft, AlignRight},
	))
	return b.String()
}

// FormatBytes renders n with a binary unit suffix; zero renders as "-".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
