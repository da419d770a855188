package vectorstore

import (
	"context"

	"github.com/ragplane/ragplane/engine/core"
)

// Search types accepted by AsRetriever.
const (
	SearchTypeSimilarity     = "similarity"
	SearchTypeMMR            = "mmr"
	SearchTypeScoreThreshold = "similarity_score_threshold"
)

// SearchKwargs tunes a retriever view.
type SearchKwargs struct {
	K              int     `json:"k,omitempty"`
	FetchK         int     `json:"fetch_k,omitempty"`
	LambdaMult     float64 `json:"lambda_mult,omitempty"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}

// Retriever is a read-only view over a store with a fixed search strategy.
type Retriever struct {
	store      *Store
	searchType string
	kwargs     SearchKwargs
}

// AsRetriever binds a search strategy to the store.
func (s *Store) AsRetriever(searchType string, kwargs SearchKwargs) (*Retriever, error) {
	if searchType == "" {
		searchType = SearchTypeSimilarity
	}
	switch searchType {
	case SearchTypeSimilarity, SearchTypeMMR, SearchTypeScoreThreshold:
	default:
		return nil, core.Unsupportedf("search type %q", searchType)
	}
	if kwargs.K <= 0 {
		kwargs.K = 4
	}
	return &Retriever{store: s, searchType: searchType, kwargs: kwargs}, nil
}

// Invoke runs the bound search for the query.
func (r *Retriever) Invoke(ctx context.Context, query string) ([]Result, error) {
	switch r.searchType {
	case SearchTypeMMR:
		return r.store.MMRSearch(ctx, query, r.kwargs.K, r.kwargs.FetchK, r.kwargs.LambdaMult)
	case SearchTypeScoreThreshold:
		return r.store.SimilaritySearchWithScores(ctx, query, r.kwargs.K, r.kwargs.ScoreThreshold)
	default:
		return r.store.SimilaritySearch(ctx, query, r.kwargs.K)
	}
}
