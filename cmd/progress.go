package cmd

import (
	"fmt"
	"io"
)

// cliProgress prints export progress roughly every 5% of a table.
type cliProgress struct {
	out         io.Writer
	totals      map[string]int
	counts      map[string]int
	lastPrinted map[string]int
}

func newCLIProgress(out io.Writer) *cliProgress {
	return &cliProgress{
		out:         out,
		totals:      make(map[string]int),
		counts:      make(map[string]int),
		lastPrinted: make(map[string]int),
	}
}

func (p *cliProgress) StartTable(table string, total int) {
	p.totals[table] = max(total, 0)
	p.counts[table] = 0
	p.lastPrinted[table] = 0
	fmt.Fprintf(p.out, "exporting %s (%d rows)\n", table, p.totals[table])
}

func (p *cliProgress) Increment(table string, delta int) {
	if delta <= 0 {
		return
	}
	current := p.counts[table] + delta
	p.counts[table] = current
	total := p.totals[table]
	if current == total || current-p.lastPrinted[table] >= progressStep(total) {
		fmt.Fprintf(p.out, "  %s: %d/%d\n", table, current, total)
		p.lastPrinted[table] = current
	}
}

func (p *cliProgress) FinishTable(table string) {
	fmt.Fprintf(p.out, "exported %s: %d rows\n", table, p.counts[table])
	delete(p.counts, table)
	delete(p.totals, table)
	delete(p.lastPrinted, table)
}

func progressStep(total int) int {
	if total <= 0 {
		return 1000
	}
	return min(max(total/20, 1), 1000)
}
