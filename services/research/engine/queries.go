// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

// maxInternalQueries caps the expanded internal query set.
const maxInternalQueries = 6

// normalizeQueries trims, drops empties, and deduplicates by exact text
// while preserving first-appearance order. When nothing usable remains,
// the raw task text becomes the single query.
func normalizeQueries(queries []string, fallbackTask string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	if len(out) == 0 && strings.TrimSpace(fallbackTask) != "" {
		out = append(out, strings.TrimSpace(fallbackTask))
	}
	return out
}

// profileQuerySuffixes are appended for profile-analysis tasks so the
// internal phase covers the standard profile facets even when the oracle
// planned narrowly.
var profileQuerySuffixes = []string{"skills", "experience", "projects", "certifications"}

// expandInternalQueries widens a thin internal query set. An oracle that
// proposed fewer than two queries gets overview/details variants of the
// task; profile-analysis tasks get the fixed facet queries. The result is
// normalized again and capped at maxInternalQueries.
func expandInternalQueries(queries []string, task, taskType string) []string {
	expanded := normalizeQueries(queries, task)

	if len(expanded) < 2 {
		expanded = append(expanded,
			fmt.Sprintf("overview of %s", task),
			fmt.Sprintf("details about %s", task),
		)
	}
	if taskType == datatypes.TaskTypeProfileAnalysis {
		for _, suffix := range profileQuerySuffixes {
			expanded = append(expanded, fmt.Sprintf("%s %s", task, suffix))
		}
	}

	expanded = normalizeQueries(expanded, task)
	if len(expanded) > maxInternalQueries {
		expanded = expanded[:maxInternalQueries]
	}
	return expanded
}
