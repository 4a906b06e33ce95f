package survey

import (
	"sort"

	"github.com/kluth/npmsurvey/internal/analyzer"
	"github.com/kluth/npmsurvey/internal/reporter"
)

// Tally counts violations per rule per module across a survey.
type Tally struct {
	counts  map[string]map[string]int
	modules int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]map[string]int)}
}

// Add records the violations found for one surveyed module. A module
// whose violations show it could not be analyzed does not count towards
// ModuleCount, but its violations are still tallied.
func (t *Tally) Add(module string, violations []string) {
	parsed := true
	for _, v := range violations {
		if analyzer.IsUnparsed(v) {
			parsed = false
			break
		}
	}
	if parsed {
		t.modules++
	}
	for _, v := range violations {
		m, ok := t.counts[v]
		if !ok {
			m = make(map[string]int)
			t.counts[v] = m
		}
		m[module]++
	}
}

// ModuleCount is the number of modules that were analyzed.
func (t *Tally) ModuleCount() int { return t.modules }

// Rows returns one row per violation, sorted by violation.
func (t *Tally) Rows() []reporter.Row {
	rows := make([]reporter.Row, 0, len(t.counts))
	for v, perModule := range t.counts {
		row := reporter.Row{Violation: v, Modules: len(perModule)}
		values := make([]int, 0, len(perModule))
		for _, n := range perModule {
			row.Total += n
			values = append(values, n)
		}
		row.Quartiles = Quartiles(values, t.modules)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Violation < rows[j].Violation })
	return rows
}

// Table wraps Rows with the module count.
func (t *Tally) Table(caption string) *reporter.Table {
	return &reporter.Table{Caption: caption, ModuleCount: t.modules, Rows: t.Rows()}
}

// Quartiles pads values with zeros for the modules that had no
// occurrence, up to moduleCount, and returns the values at the first
// quartile, the median and the third quartile.
func Quartiles(values []int, moduleCount int) [3]int {
	padded := make([]int, len(values), max(len(values), moduleCount))
	copy(padded, values)
	for len(padded) < moduleCount {
		padded = append(padded, 0)
	}
	if len(padded) == 0 {
		return [3]int{}
	}
	sort.Ints(padded)
	n := len(padded)
	return [3]int{padded[n>>2], padded[n>>1], padded[(3*n)>>2]}
}
