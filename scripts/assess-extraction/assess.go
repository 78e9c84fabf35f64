package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/intentgate/pkg/services"
)

// Expectation is what a case requires of the pipeline. Empty fields are not
// checked. ErrorCode expects the pipeline to stop with that validation code.
type Expectation struct {
	IntentType    string   `yaml:"intent_type"`
	Metric        string   `yaml:"metric"`
	GroupBy       []string `yaml:"group_by"`
	TimeDimension string   `yaml:"time_dimension"`
	Granularity   string   `yaml:"granularity"`
	Scope         string   `yaml:"scope"`
	ErrorCode     string   `yaml:"error_code"`
}

// Case is one question with its expected outcome.
type Case struct {
	Question string      `yaml:"question"`
	Expect   Expectation `yaml:"expect"`
}

// CaseAssessment is the outcome of one case.
type CaseAssessment struct {
	Question   string   `json:"question"`
	Passed     bool     `json:"passed"`
	Stage      string   `json:"stage"`
	ErrorCode  string   `json:"error_code,omitempty"`
	Mismatches []string `json:"mismatches,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

func loadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, errors.New("no cases defined")
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Question) == "" {
			return nil, fmt.Errorf("case %d: question is required", i)
		}
	}
	return cases, nil
}

func assessCase(c Case, res *services.QueryResult) CaseAssessment {
	out := CaseAssessment{
		Question:   c.Question,
		Stage:      string(res.Stage),
		DurationMs: res.DurationMs,
	}
	if res.Error != nil {
		out.ErrorCode = res.Error.ErrorCode
	}

	var mismatches []string
	check := func(field, want, got string) {
		if want != "" && !strings.EqualFold(want, got) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %q, got %q", field, want, got))
		}
	}

	e := c.Expect
	if e.ErrorCode != "" {
		if res.Error == nil {
			mismatches = append(mismatches, fmt.Sprintf("error_code: want %q, pipeline succeeded", e.ErrorCode))
		} else {
			check("error_code", e.ErrorCode, res.Error.ErrorCode)
		}
		out.Mismatches = mismatches
		out.Passed = len(mismatches) == 0
		return out
	}

	v := res.ValidatedIntent
	if v == nil {
		msg := "pipeline failed"
		if res.Error != nil {
			msg = fmt.Sprintf("pipeline failed at %s: %s", res.Error.Stage, res.Error.Message)
		}
		out.Mismatches = []string{msg}
		return out
	}

	check("intent_type", e.IntentType, string(v.Type))
	check("metric", e.Metric, v.Metric)
	check("scope", e.Scope, v.Scope.String())
	if v.TimeDimension != nil {
		check("time_dimension", e.TimeDimension, v.TimeDimension.Dimension)
		check("granularity", e.Granularity, string(v.TimeDimension.Granularity))
	} else if e.TimeDimension != "" || e.Granularity != "" {
		mismatches = append(mismatches, "time_dimension: none resolved")
	}
	if e.GroupBy != nil && !sameMembers(e.GroupBy, v.GroupBy) {
		mismatches = append(mismatches, fmt.Sprintf("group_by: want %v, got %v", e.GroupBy, v.GroupBy))
	}

	out.Mismatches = mismatches
	out.Passed = len(mismatches) == 0
	return out
}

// sameMembers compares group_by lists ignoring order.
func sameMembers(want, got []string) bool {
	a := slices.Clone(want)
	b := slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// score is the percentage of passed cases.
func score(results []CaseAssessment) int {
	if len(results) == 0 {
		return 0
	}
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return passed * 100 / len(results)
}
