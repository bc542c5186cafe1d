package clustering

import "genzweekly/internal/core"

const (
	// DuplicateThreshold is the title similarity above which two articles are
	// treated as the same story.
	DuplicateThreshold = 0.85
	// TopicThreshold is the looser similarity used to group articles into topics.
	TopicThreshold = 0.7
)

// Dedupe removes exact-URL and near-duplicate-title articles, keeping the more
// relevant article of each duplicate pair. Order of first appearance is kept,
// a replacement takes the slot of the article it displaces.
//
// Every candidate is compared against every accepted article, so the cost is
// O(n²) title comparisons. That is fine for per-category batches of tens of
// items; larger inputs need an index (e.g. MinHash) instead.
func Dedupe(articles []core.Article) []core.Article {
	accepted := make([]core.Article, 0, len(articles))
	seenURLs := make(map[string]struct{}, len(articles))

	for _, candidate := range articles {
		if _, dup := seenURLs[candidate.URL]; dup {
			continue
		}

		var matches []int
		best := -1.0
		for i, existing := range accepted {
			if TitleSimilarity(candidate.Title, existing.Title) > DuplicateThreshold {
				matches = append(matches, i)
				if r := existing.Relevance(0); r > best {
					best = r
				}
			}
		}

		if len(matches) == 0 {
			accepted = append(accepted, candidate)
			seenURLs[candidate.URL] = struct{}{}
			continue
		}

		if candidate.Relevance(0) <= best {
			continue
		}

		// The candidate beats every article it duplicates: it takes the first
		// match's slot and the other matches go, so accepted titles stay
		// pairwise below the threshold.
		first := matches[0]
		for _, idx := range matches {
			delete(seenURLs, accepted[idx].URL)
		}
		accepted[first] = candidate
		seenURLs[candidate.URL] = struct{}{}
		if len(matches) > 1 {
			accepted = removeIndexes(accepted, matches[1:])
		}
	}

	return accepted
}

// CountUniqueTopics greedily clusters articles by title similarity against
// each cluster's first member and returns the number of clusters. It is a
// diversity signal only; nothing is removed.
func CountUniqueTopics(articles []core.Article) int {
	var heads []string
	for _, a := range articles {
		matched := false
		for _, head := range heads {
			if TitleSimilarity(a.Title, head) > TopicThreshold {
				matched = true
				break
			}
		}
		if !matched {
			heads = append(heads, a.Title)
		}
	}
	return len(heads)
}

// removeIndexes drops the given ascending indexes from articles.
func removeIndexes(articles []core.Article, idx []int) []core.Article {
	out := articles[:0]
	next := 0
	for i, a := range articles {
		if next < len(idx) && idx[next] == i {
			next++
			continue
		}
		out = append(out, a)
	}
	return out
}
