package vectorstore

// maximalMarginalRelevance reranks candidate matches balancing query
// relevance against diversity among already-selected results. Candidates
// missing embeddings are skipped; lambda 1 reduces to plain similarity.
func maximalMarginalRelevance(query []float32, candidates []Match, k int, lambda float64) []Match {
	pool := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) > 0 {
			pool = append(pool, c)
		}
	}
	selected := make([]Match, 0, k)
	for len(selected) < k && len(pool) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, candidate := range pool {
			relevance, err := cosineSimilarity(query, candidate.Embedding)
			if err != nil {
				continue
			}
			redundancy := 0.0
			for _, chosen := range selected {
				sim, err := cosineSimilarity(candidate.Embedding, chosen.Embedding)
				if err != nil {
					continue
				}
				if sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance - (1-lambda)*redundancy
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, pool[bestIdx])
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
	}
	return selected
}
