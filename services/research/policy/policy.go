// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy scans incoming research tasks against embedded
// data-classification patterns. A task that carries secrets or personal
// data is rejected before a run is created, because runs forward their
// task text to external tools (web search, Drive) verbatim.
package policy

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var classificationPatterns []byte

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

type classificationFile struct {
	Classifications []Classification `yaml:"classifications"`
}

type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

type Pattern struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`

	compiled *regexp.Regexp
}

// Finding is one pattern match in a scanned task.
type Finding struct {
	MatchedContent     string          `json:"matched_content"`
	ClassificationName string          `json:"classification_name"`
	PatternID          string          `json:"pattern_id"`
	PatternDescription string          `json:"pattern_description"`
	Confidence         ConfidenceLevel `json:"confidence"`
}

// Engine holds the compiled classification rules, ordered by priority.
type Engine struct {
	classifiers []Classification
}

// NewEngine loads the embedded policy definitions, compiles every regex,
// and sorts classifications from highest to lowest priority.
func NewEngine() (*Engine, error) {
	var file classificationFile
	if err := yaml.Unmarshal(classificationPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded policy file: %w", err)
	}

	for i := range file.Classifications {
		for j := range file.Classifications[i].Patterns {
			p := &file.Classifications[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the regex %s: %w", p.Regex, err)
			}
			p.compiled = re
		}
	}

	sort.Slice(file.Classifications, func(i, j int) bool {
		return file.Classifications[i].Priority > file.Classifications[j].Priority
	})

	return &Engine{classifiers: file.Classifications}, nil
}

// Scan audits a task string against every pattern and returns all
// matches. An empty result means the task may start a run.
func (e *Engine) Scan(task string) []Finding {
	var findings []Finding
	for _, classifier := range e.classifiers {
		for _, pattern := range classifier.Patterns {
			match := pattern.compiled.FindString(task)
			if match == "" {
				continue
			}
			findings = append(findings, Finding{
				MatchedContent:     strings.TrimSpace(match),
				ClassificationName: classifier.Name,
				PatternID:          pattern.ID,
				PatternDescription: pattern.Description,
				Confidence:         pattern.Confidence,
			})
		}
	}
	return findings
}
