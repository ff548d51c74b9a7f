package domain

// SearchResult is a single ranked match from the vector index.
// Score is cosine similarity normalised to [0,1].
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Title    string
	URL      string
	Metadata DocumentMetadata
}

// Citation is a source reference surfaced to the end user. URL is the identity.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchFilters narrows a vector search. Empty slices mean no restriction.
type SearchFilters struct {
	SimilarityThreshold float32
	ContentTypes        []ContentType
	Sections            []string
	Collections         []string
}

// IsEmpty reports whether no filter and no positive threshold is set.
func (f SearchFilters) IsEmpty() bool {
	return f.SimilarityThreshold <= 0 &&
		len(f.ContentTypes) == 0 &&
		len(f.Sections) == 0 &&
		len(f.Collections) == 0
}

// Matches applies every filter to a result; filters are AND-combined.
func (f SearchFilters) Matches(r *SearchResult) bool {
	if r == nil {
		return false
	}
	if f.SimilarityThreshold > 0 && r.Score < f.SimilarityThreshold {
		return false
	}
	if len(f.ContentTypes) > 0 && !containsContentType(f.ContentTypes, r.Metadata.ContentType) {
		return false
	}
	if len(f.Sections) > 0 && !containsString(f.Sections, r.Metadata.Section) {
		return false
	}
	if len(f.Collections) > 0 && !containsString(f.Collections, r.Metadata.Collection) {
		return false
	}
	return true
}

// HybridWeights balances vector similarity against lexical rank in a hybrid search.
type HybridWeights struct {
	Vector float32
	Text   float32
}

func containsContentType(list []ContentType, v ContentType) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
