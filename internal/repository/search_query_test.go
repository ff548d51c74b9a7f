package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/domain"
)

func TestSearchQuery_OrdersByDistance(t *testing.T) {
	query, args := searchQuery([]float32{1, 0}, 15, domain.SearchFilters{})

	assert.Contains(t, query, "ORDER BY embedding <=> $1\n")
	assert.Contains(t, query, "LIMIT $2")
	assert.NotContains(t, query, "WHERE score")
	require.Len(t, args, 2)
	assert.Equal(t, 15, args[1])
}

func TestSearchQuery_ThresholdBecomesDistanceBound(t *testing.T) {
	query, args := searchQuery([]float32{1, 0}, 5, domain.SearchFilters{
		ContentTypes:        []domain.ContentType{domain.ContentTypeGuide},
		Collections:         []string{"admin"},
		SimilarityThreshold: 0.75,
	})

	assert.Contains(t, query, "content_type = ANY($2)")
	assert.Contains(t, query, "collection = ANY($3)")
	assert.Contains(t, query, "embedding <=> $1 <= $4")
	assert.Contains(t, query, "LIMIT $5")
	require.Len(t, args, 5)
	assert.Equal(t, []string{"guide"}, args[1])
	assert.InDelta(t, 0.25, args[3].(float64), 1e-9)
	assert.Equal(t, 5, args[4])

	// the limit applies inside the nearest-neighbour scan, before the score sort
	assert.Less(t, strings.Index(query, "LIMIT"), strings.Index(query, "ORDER BY score DESC"))
}
