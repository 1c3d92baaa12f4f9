package index

import "sort"

// Candidates returns the ids of entities that share a word prefix with
// words, in snapshot rank order. Empty words are ignored. A prefix marked
// insufficient for an entity does not retrieve it. When no prefix hits,
// entities whose first word starts with the first character of the first
// prefix are returned instead. allowedCodes, when non-empty, restricts the
// result to those attribute codes.
func (s *Snapshot) Candidates(words []string, allowedCodes []string) []int64 {
	var prefixes []string
	for _, w := range words {
		if w == "" {
			continue
		}
		if p := Prefix(w); !containsString(prefixes, p) {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return nil
	}

	found := make(map[int64]struct{})
	for _, p := range prefixes {
		for _, id := range s.Prefixes[p] {
			e, ok := s.byID[id]
			if !ok || e.IsInsufficient(p) {
				continue
			}
			found[id] = struct{}{}
		}
	}

	if len(found) == 0 {
		first := firstRune(prefixes[0])
		for _, e := range s.Entities {
			if len(e.Words) > 0 && firstRune(e.Words[0]) == first {
				found[e.ID] = struct{}{}
			}
		}
	}

	ids := make([]int64, 0, len(found))
	for id := range found {
		if len(allowedCodes) > 0 && !containsString(allowedCodes, s.byID[id].AttributeCode) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.Rank(ids[i]) < s.Rank(ids[j]) })
	return ids
}
