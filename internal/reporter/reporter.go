package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kluth/npmsurvey/internal/analyzer"
)

// Formats
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatTerminal = "terminal"
	FormatSARIF    = "sarif"
)

// Formats lists the accepted values for the format option.
var Formats = []string{FormatMarkdown, FormatJSON, FormatTerminal, FormatSARIF}

// Row is one line of a violation table.
type Row struct {
	Violation string `json:"violation"`
	Modules   int    `json:"modules"`
	Total     int    `json:"total"`
	Quartiles [3]int `json:"quartiles"`
}

// Ratio is a count of modules with some property out of those examined.
type Ratio struct {
	Uses  int `json:"uses"`
	Total int `json:"total"`
	// Suffix completes the sentence "N of M = P%".
	Suffix string `json:"-"`
}

// Percent returns Uses as a percentage of Total, or 0 for an empty survey.
func (r Ratio) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Uses) / float64(r.Total)
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d of %d = %1.02f%% %s", r.Uses, r.Total, r.Percent(), r.Suffix)
}

// Table is a per-violation breakdown over ModuleCount modules.
type Table struct {
	Caption     string `json:"caption,omitempty"`
	ModuleCount int    `json:"module_count"`
	Rows        []Row  `json:"rows"`
}

// Section is the output of one survey.
type Section struct {
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	Intro    []string           `json:"-"`
	Ratio    *Ratio             `json:"ratio,omitempty"`
	Table    *Table             `json:"table,omitempty"`
	Matches  []string           `json:"matches,omitempty"`
	Findings []analyzer.Finding `json:"findings,omitempty"`
}

// Reporter outputs survey sections to a writer.
type Reporter struct {
	writer  io.Writer
	format  string
	verbose bool
	width   int
}

// defaultWidth wraps terminal paragraphs when the terminal size is unknown.
const defaultWidth = 78

// New creates a new Reporter.
func New(w io.Writer, format string) *Reporter {
	if format == "" {
		format = FormatMarkdown
	}
	return &Reporter{writer: w, format: format, width: defaultWidth}
}

// NewWithOptions creates a Reporter that, when verbose, lists matching
// modules under each ratio.
func NewWithOptions(w io.Writer, format string, verbose bool) *Reporter {
	r := New(w, format)
	r.verbose = verbose
	return r
}

// SetWidth sets the column at which terminal output wraps paragraphs.
func (r *Reporter) SetWidth(width int) {
	if width > 0 {
		r.width = width
	}
}

// Render outputs the sections.
func (r *Reporter) Render(sections ...Section) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(sections)
	case FormatTerminal:
		return r.renderTerminal(sections)
	case FormatSARIF:
		return r.renderSARIF(sections)
	case FormatMarkdown:
		return r.renderMarkdown(sections)
	default:
		return fmt.Errorf("unknown format %q", r.format)
	}
}

func (r *Reporter) renderMarkdown(sections []Section) error {
	w := r.writer
	for _, s := range sections {
		fmt.Fprintf(w, "\n## %s {#%s}\n\n", s.Title, s.ID)
		for _, p := range s.Intro {
			fmt.Fprintf(w, "%s\n\n", p)
		}
		if s.Ratio != nil {
			fmt.Fprintf(w, "%s\n\n", s.Ratio)
			if r.verbose {
				for _, m := range s.Matches {
					fmt.Fprintf(w, "* `%s`\n", m)
				}
				if len(s.Matches) > 0 {
					fmt.Fprintln(w)
				}
			}
		}
		if s.Table != nil {
			if s.Table.Caption != "" {
				fmt.Fprintf(w, "%s\n\n", s.Table.Caption)
			}
			t := violationTable(s.Table.Rows, "`")
			fmt.Fprintf(w, "%s\n\n", strings.TrimRight(t.RenderMarkdown(), "\n"))
		}
	}
	return nil
}

func (r *Reporter) renderJSON(sections []Section) error {
	if sections == nil {
		sections = []Section{}
	}
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(sections)
}

func (r *Reporter) renderTerminal(sections []Section) error {
	w := r.writer
	intro := introStyle.Width(r.width)
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, titleStyle.Render(s.Title))
		for _, p := range s.Intro {
			fmt.Fprintln(w, intro.Render(p))
		}
		if s.Ratio != nil {
			fmt.Fprintln(w, ratioStyle.Render(s.Ratio.String()))
			if r.verbose {
				for _, m := range s.Matches {
					fmt.Fprintf(w, "  %s %s\n", bulletStyle.Render("•"), m)
				}
			}
		}
		if s.Table != nil {
			if s.Table.Caption != "" {
				fmt.Fprintln(w, captionStyle.Render(s.Table.Caption))
			}
			t := violationTable(s.Table.Rows, "")
			t.SetStyle(table.StyleLight)
			fmt.Fprintln(w, t.Render())
		}
	}
	return nil
}

// violationTable lays out rows with the violation wrapped in quote, which
// is a backtick for Markdown code spans.
func violationTable(rows []Row, quote string) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Violation", "Count of Modules", "Total Count", "Quartiles"})
	for _, row := range rows {
		t.AppendRow(table.Row{
			quote + row.Violation + quote,
			row.Modules,
			row.Total,
			fmt.Sprintf("%d / %d / %d", row.Quartiles[0], row.Quartiles[1], row.Quartiles[2]),
		})
	}
	return t
}
