package reporter

import (
	"encoding/json"
	"path/filepath"

	"github.com/kluth/npmsurvey/internal/analyzer"
)

// SARIF Schema Structs (simplified for our needs)
// Schema: https://docs.oasis-open.org/sarif/sarif/v2.1.0/os/schemas/sarif-schema-2.1.0.json

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

// renderSARIF emits one run per section, with a result per finding.
// Synthetic outcomes such as "Passed" are not results.
func (r *Reporter) renderSARIF(sections []Section) error {
	log := sarifLog{
		Version: "2.1.0",
		Schema:  "https://docs.oasis-open.org/sarif/sarif/v2.1.0/os/schemas/sarif-schema-2.1.0.json",
		Runs:    []sarifRun{},
	}
	for _, s := range sections {
		run := sarifRun{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "npmsurvey " + s.ID,
				InformationURI: "https://github.com/kluth/npmsurvey",
				Rules:          []sarifRule{},
			}},
			Results: []sarifResult{},
		}
		seen := make(map[string]bool)
		for _, f := range s.Findings {
			if f.Rule == analyzer.RulePassed {
				continue
			}
			if !seen[f.Rule] {
				seen[f.Rule] = true
				run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
					ID:               f.Rule,
					ShortDescription: sarifMessage{Text: f.Rule},
				})
			}
			level := "warning"
			if analyzer.IsUnparsed(f.Rule) || f.Rule == analyzer.RuleReadError {
				level = "note"
			}
			res := sarifResult{
				RuleID:  f.Rule,
				Level:   level,
				Message: sarifMessage{Text: f.Module + ": " + f.Rule},
			}
			if f.File != "" {
				loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: filepath.ToSlash(f.File)},
				}}
				if f.Line > 0 {
					loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.Line, StartColumn: f.Column}
				}
				res.Locations = []sarifLocation{loc}
			}
			run.Results = append(run.Results, res)
		}
		log.Runs = append(log.Runs, run)
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}
