package cli

import (
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hobgoblin/qao/internal/core/priority"
	"github.com/hobgoblin/qao/internal/persist"
)

// newPrinter formats numbers with English digit grouping.
func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// RunSummary is what `qaosim run` reports.
type RunSummary struct {
	Scene        string
	Restored     string
	Frames       int64
	Steps        int64
	StepCounter  int64
	Objects      int
	Added        int
	Released     int
	Reordered    int
	ScriptErrors int
	Saved        string
}

func printSection(w io.Writer, title string) {
	n := 46 - len(title) - 1
	if n < 3 {
		n = 3
	}
	newPrinter().Fprintf(w, "── %s %s\n", title, strings.Repeat("─", n))
}

func printStat(w io.Writer, label string, v int64) {
	p := newPrinter()
	num := p.Sprintf("%d", v)
	dots := 42 - len(label) - len(num)
	if dots < 3 {
		dots = 3
	}
	p.Fprintf(w, "%s %s %s\n", label, strings.Repeat("·", dots), num)
}

func printRunSummary(w io.Writer, s RunSummary) {
	p := newPrinter()
	printSection(w, "run")
	if s.Restored != "" {
		p.Fprintf(w, "restored from %s\n", s.Restored)
	} else {
		p.Fprintf(w, "scene %s\n", s.Scene)
	}
	printStat(w, "frames", s.Frames)
	printStat(w, "steps", s.Steps)
	printStat(w, "objects", int64(s.Objects))
	printStat(w, "added", int64(s.Added))
	printStat(w, "released", int64(s.Released))
	printStat(w, "reordered", int64(s.Reordered))
	printStat(w, "script errors", int64(s.ScriptErrors))
	if s.Saved != "" {
		p.Fprintf(w, "saved snapshot %s\n", s.Saved)
	}
}

func printPriorities(w io.Writer, r *priority.Resolver[string]) {
	p := newPrinter()
	printSection(w, "priorities")
	for _, k := range r.Keys() {
		prio, _ := r.PriorityOf(k)
		deps := r.DependenciesOf(k)
		if len(deps) == 0 {
			p.Fprintf(w, "%-16s %8d\n", k, prio)
			continue
		}
		p.Fprintf(w, "%-16s %8d  after %s\n", k, prio, strings.Join(deps, ", "))
	}
}

func printSnapshots(w io.Writer, name string, snaps []*persist.Snapshot) {
	p := newPrinter()
	printSection(w, "snapshots "+name)
	if len(snaps) == 0 {
		p.Fprintf(w, "none\n")
		return
	}
	for _, s := range snaps {
		p.Fprintf(w, "%s  %s  iteration %d  objects %d  %s\n",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Iteration, s.ObjectCount,
			hex.EncodeToString(s.Digest[:min(8, len(s.Digest))]))
	}
}
