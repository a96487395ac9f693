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

import "github.com/AleutianAI/AleutianResearch/services/research/datatypes"

// collectCitations flattens every step's source list in step order and
// assigns sequential 1-based display ids on first occurrence of each
// distinct source. Later duplicates keep the earlier id by being dropped.
func collectCitations(steps []datatypes.Step) []datatypes.Citation {
	seen := make(map[string]bool)
	var citations []datatypes.Citation
	for _, step := range steps {
		for _, source := range step.Sources {
			if source == "" || seen[source] {
				continue
			}
			seen[source] = true
			citations = append(citations, datatypes.Citation{
				ID:     len(citations) + 1,
				Source: source,
			})
		}
	}
	return citations
}
