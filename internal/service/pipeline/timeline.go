package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"clinical-notes-service/internal/models"
)

// RowHeader is the column order of exported event rows.
var RowHeader = []string{"seq", "timestamp", "from", "to", "action", "details"}

// Rows flattens the log into one row per event. Details are JSON encoded.
func Rows(log models.EventLog) ([][]string, error) {
	rows := make([][]string, 0, len(log))
	for _, ev := range log {
		details, err := json.Marshal(ev.Details)
		if err != nil {
			return nil, fmt.Errorf("encode details of event %d: %w", ev.Seq, err)
		}
		rows = append(rows, []string{
			fmt.Sprint(ev.Seq),
			ev.Timestamp.Format(time.RFC3339),
			ev.From.String(),
			ev.To.String(),
			string(ev.Action),
			string(details),
		})
	}
	return rows, nil
}

// WriteCSV writes the header and one row per event.
func WriteCSV(w io.Writer, log models.EventLog) error {
	rows, err := Rows(log)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(RowHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// Timeline renders the log as readable text wrapped at width columns.
func Timeline(log models.EventLog, width int) string {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for _, ev := range log {
		fmt.Fprintf(&b, "%s  %-17s → %-17s  [%s]\n",
			ev.Timestamp.Format("15:04:05"), ev.From, ev.To, ev.Action)

		keys := make([]string, 0, len(ev.Details))
		for k := range ev.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line := fmt.Sprintf("%s: %s", k, detailValue(ev.Details[k]))
			b.WriteString(indent.String(wordwrap.String(line, width-4), 4))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func detailValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case int, int64, float64, bool:
		return fmt.Sprint(x)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// Diagram returns the transition graph in Graphviz DOT form. A dotted edge
// from Final back to Start marks the caller-driven regenerate, which begins
// a new run.
func Diagram() string {
	var b strings.Builder
	b.WriteString("digraph pipeline {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n")
	for _, s := range models.States {
		shape := ""
		if s.IsTerminal() {
			shape = ", shape=doublecircle"
		}
		fmt.Fprintf(&b, "  %q [label=%q%s];\n", s, s, shape)
	}
	for _, e := range Edges() {
		style := ""
		if e.Action == models.ActionAbort {
			style = ", style=dashed, color=red"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q%s];\n", e.From, e.To, e.Action, style)
	}
	fmt.Fprintf(&b, "  %q -> %q [label=%q, style=dotted];\n",
		models.StateFinal, models.StateStart, "regenerate (caller retry, new run)")
	b.WriteString("}\n")
	return b.String()
}
