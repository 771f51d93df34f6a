package graph

// QueryOptions configures a graph-mode retrieval query.
type QueryOptions struct {
	// Seeds are entity names (symbol names, file paths) the walk starts
	// from, typically the top hits of an initial vector/keyword pass.
	Seeds []string
	// TopK bounds the number of triples returned after filtering.
	TopK int
	// Depth bounds the number of hops walked from the seeds.
	Depth int
	// RelationshipTypes and EntityTypes, when non-empty, restrict which
	// edges survive the post-traversal filter.
	RelationshipTypes []RelationshipType
	EntityTypes       []EntityType
}

const overFetchMultiplier = 3

// Query performs an unfiltered over-fetch traversal (3×TopK candidate
// triples) and then applies the relationship/entity type filter, matching
// the spec's over-fetch-then-filter query path rather than filtering during
// the walk itself — this keeps the walk from starving on a narrow filter
// near the seed set.
func (s *Store) Query(opts QueryOptions) []Triple {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Depth <= 0 {
		opts.Depth = 2
	}

	overFetchLimit := opts.TopK * overFetchMultiplier

	candidates := s.Traverse(opts.Seeds, TraverseOptions{Depth: opts.Depth})
	if len(candidates) > overFetchLimit {
		candidates = candidates[:overFetchLimit]
	}

	relAllowed := toRelSet(opts.RelationshipTypes)
	entAllowed := toEntSet(opts.EntityTypes)

	filtered := make([]Triple, 0, len(candidates))
	for _, t := range candidates {
		if len(relAllowed) > 0 && !relAllowed[t.Predicate] {
			continue
		}
		if len(entAllowed) > 0 && !entAllowed[t.SubjectType] && !entAllowed[t.ObjectType] {
			continue
		}
		filtered = append(filtered, t)
		if len(filtered) >= opts.TopK {
			break
		}
	}
	return filtered
}

// ChunkIDs collects the distinct, order-preserving set of chunk IDs that
// produced the given triples, used to map a graph walk back to retrievable
// chunks for the "graph" and "multi" search modes.
func ChunkIDs(triples []Triple) []string {
	seen := make(map[string]bool, len(triples))
	var ids []string
	for _, t := range triples {
		if t.ChunkID == "" || seen[t.ChunkID] {
			continue
		}
		seen[t.ChunkID] = true
		ids = append(ids, t.ChunkID)
	}
	return ids
}
