// Package promptest runs candidate prompt configurations against a corpus
// of YAML test cases and scores the resulting explanations. It drives the
// same prompt and client pipeline as the service, so a prompt that scores
// well here behaves identically in production.
package promptest

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/explain"
)

// CaseInput is the compilation the test case explains.
type CaseInput struct {
	Language           string                 `yaml:"language"`
	Compiler           string                 `yaml:"compiler"`
	CompilationOptions []string               `yaml:"compilationOptions,omitempty"`
	InstructionSet     string                 `yaml:"instructionSet,omitempty"`
	Code               string                 `yaml:"code"`
	Asm                []explain.AssemblyItem `yaml:"asm"`
	LabelDefinitions   map[string]int         `yaml:"labelDefinitions,omitempty"`
}

// Case is one prompt test case.
type Case struct {
	ID              string    `yaml:"id"`
	Description     string    `yaml:"description,omitempty"`
	Category        string    `yaml:"category,omitempty"`
	Audience        string    `yaml:"audience,omitempty"`
	ExplanationType string    `yaml:"explanation_type,omitempty"`
	Input           CaseInput `yaml:"input"`
}

// Request converts the case into the request the service would receive.
func (c *Case) Request() *explain.ExplainRequest {
	audience := explain.AudienceLevel(c.Audience).OrDefault()
	explanation := explain.ExplanationType(c.ExplanationType).OrDefault()

	return &explain.ExplainRequest{
		Language:           c.Input.Language,
		Compiler:           c.Input.Compiler,
		Code:               c.Input.Code,
		CompilationOptions: c.Input.CompilationOptions,
		InstructionSet:     c.Input.InstructionSet,
		Asm:                c.Input.Asm,
		LabelDefinitions:   c.Input.LabelDefinitions,
		Audience:           audience,
		Explanation:        explanation,
	}
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads the cases from one YAML file.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "failed to read test case file")
	}

	var file caseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errs.WithFields(
			errs.Wrap(err, errs.InvalidInput, "failed to parse test case file"),
			errs.Fields{"path": path})
	}
	return file.Cases, nil
}

// LoadCaseDir reads every *.yaml file in dir and concatenates their cases.
func LoadCaseDir(dir string) ([]Case, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "failed to list test case directory")
	}

	var all []Case
	for _, path := range paths {
		cases, err := LoadCases(path)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	return all, nil
}

// Filter describes which cases a run includes. Zero values match everything.
type Filter struct {
	IDs             []string
	Category        string
	Audience        string
	ExplanationType string
}

// Apply returns the cases matching the filter.
func (f Filter) Apply(cases []Case) []Case {
	ids := make(map[string]bool, len(f.IDs))
	for _, id := range f.IDs {
		ids[id] = true
	}

	var out []Case
	for _, c := range cases {
		if len(ids) > 0 && !ids[c.ID] {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		if f.Audience != "" && c.Audience != f.Audience {
			continue
		}
		if f.ExplanationType != "" && c.ExplanationType != f.ExplanationType {
			continue
		}
		out = append(out, c)
	}
	return out
}
