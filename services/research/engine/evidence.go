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

// mergeChunks appends newHits to existing, dropping any hit whose dedup
// key (document id, chunk index, text prefix) already appeared. Order of
// first appearance is preserved. Retrieval scores are deliberately
// ignored: relevance filtering belongs to the oracle downstream, this
// merge only guarantees uniqueness.
func mergeChunks(existing, newHits []datatypes.EvidenceChunk) []datatypes.EvidenceChunk {
	seen := make(map[string]bool, len(existing)+len(newHits))
	for _, c := range existing {
		seen[c.DedupKey()] = true
	}

	out := existing
	for _, c := range newHits {
		key := c.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
