package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docsage/internal/domain"
)

const defaultSearchLimit = 20

const documentColumns = `id, url, title, content, content_type, section, subsection, collection, chunk_index, total_chunks, created_at, updated_at`

// DocumentRepository stores embedded documents and serves vector search.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

// ReplacePage deletes every stored unit of parentURL and inserts docs in one
// transaction, so readers never see a half-replaced page.
func (r *DocumentRepository) ReplacePage(ctx context.Context, parentURL string, docs []*domain.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("got %d documents but %d embeddings", len(docs), len(embeddings))
	}

	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE parent_url = $1`, parentURL); err != nil {
			return err
		}

		for i, d := range docs {
			createdAt := d.Metadata.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			updatedAt := d.Metadata.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = createdAt
			}
			totalChunks := d.Metadata.TotalChunks
			if totalChunks <= 0 {
				totalChunks = 1
			}

			_, err := tx.Exec(ctx,
				`INSERT INTO documents
					(id, url, parent_url, title, content, content_type, section, subsection, collection, chunk_index, total_chunks, embedding, created_at, updated_at)
				 VALUES
					($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				d.ID,
				d.URL,
				parentURL,
				d.Title,
				d.Content,
				nullableString(string(d.Metadata.ContentType)),
				nullableString(d.Metadata.Section),
				nullableString(d.Metadata.Subsection),
				nullableString(d.Metadata.Collection),
				d.Metadata.ChunkIndex,
				totalChunks,
				pgvector.NewVector(embeddings[i]),
				createdAt,
				updatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert %s: %w", d.URL, err)
			}
		}
		return nil
	})
}

// GetByURL returns the stored unit with the given URL.
func (r *DocumentRepository) GetByURL(ctx context.Context, url string) (*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE url = $1`,
		url,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return docs[0], nil
}

// ListByParent returns every stored unit of a page in chunk order.
func (r *DocumentRepository) ListByParent(ctx context.Context, parentURL string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE parent_url = $1 ORDER BY chunk_index`,
		parentURL,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return docs, nil
}

// DeletePage removes every unit of a page.
func (r *DocumentRepository) DeletePage(ctx context.Context, parentURL string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE parent_url = $1`, parentURL)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Search ranks documents by cosine similarity, best first.
func (r *DocumentRepository) Search(ctx context.Context, vector []float32, limit int) ([]*domain.SearchResult, error) {
	return r.SearchWithFilters(ctx, vector, limit, domain.SearchFilters{})
}

// SearchWithFilters ranks documents by cosine similarity, applying the
// threshold and categorical filters in SQL.
func (r *DocumentRepository) SearchWithFilters(ctx context.Context, vector []float32, limit int, filters domain.SearchFilters) ([]*domain.SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query, args := searchQuery(vector, limit, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSearchRows(rows)
}

// HybridSearch blends cosine similarity with full-text rank. ts_rank_cd with
// normalization 32 keeps the text score in [0,1).
func (r *DocumentRepository) HybridSearch(ctx context.Context, vector []float32, text string, limit int, weights domain.HybridWeights) ([]*domain.SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, url, title, content, content_type, section, subsection, collection,
		       chunk_index, total_chunks, created_at, updated_at,
		       ($3::float8 * vscore + $4::float8 * tscore) AS score
		FROM (
			SELECT *,
			       GREATEST(0, 1 - (embedding <=> $1)) AS vscore,
			       COALESCE(ts_rank_cd(tsv, websearch_to_tsquery('english', $2), 32), 0) AS tscore
			FROM documents
			WHERE embedding IS NOT NULL
		) ranked
		ORDER BY score DESC, id
		LIMIT $5`,
		pgvector.NewVector(vector), text, float64(weights.Vector), float64(weights.Text), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSearchRows(rows)
}

// searchQuery orders by raw cosine distance so the hnsw index drives the
// scan; the score is derived in the outer select.
func searchQuery(vector []float32, limit int, filters domain.SearchFilters) (string, []any) {
	args := []any{pgvector.NewVector(vector)}
	where := []string{"embedding IS NOT NULL"}
	where, args = appendFilterClauses(where, args, filters)
	if filters.SimilarityThreshold > 0 {
		args = append(args, 1-float64(filters.SimilarityThreshold))
		where = append(where, fmt.Sprintf("embedding <=> $1 <= $%d", len(args)))
	}
	args = append(args, limit)

	query := `
		SELECT ` + documentColumns + `, GREATEST(0, 1 - distance) AS score
		FROM (
			SELECT ` + documentColumns + `, embedding <=> $1 AS distance
			FROM documents
			WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY embedding <=> $1
			LIMIT $` + fmt.Sprint(len(args)) + `
		) nearest
		ORDER BY score DESC, id`
	return query, args
}

func appendFilterClauses(where []string, args []any, filters domain.SearchFilters) ([]string, []any) {
	if len(filters.ContentTypes) > 0 {
		types := make([]string, len(filters.ContentTypes))
		for i, ct := range filters.ContentTypes {
			types[i] = string(ct)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("content_type = ANY($%d)", len(args)))
	}
	if len(filters.Sections) > 0 {
		args = append(args, filters.Sections)
		where = append(where, fmt.Sprintf("section = ANY($%d)", len(args)))
	}
	if len(filters.Collections) > 0 {
		args = append(args, filters.Collections)
		where = append(where, fmt.Sprintf("collection = ANY($%d)", len(args)))
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (*domain.Document, error) {
	var d domain.Document
	var contentType, section, subsection, collection pgtype.Text
	dest := []any{
		&d.ID, &d.URL, &d.Title, &d.Content,
		&contentType, &section, &subsection, &collection,
		&d.Metadata.ChunkIndex, &d.Metadata.TotalChunks,
		&d.Metadata.CreatedAt, &d.Metadata.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	d.Metadata.ContentType = domain.ContentType(textValue(contentType))
	d.Metadata.Section = textValue(section)
	d.Metadata.Subsection = textValue(subsection)
	d.Metadata.Collection = textValue(collection)
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func scanSearchRows(rows pgx.Rows) ([]*domain.SearchResult, error) {
	results := make([]*domain.SearchResult, 0)
	for rows.Next() {
		var score float64
		d, err := scanDocument(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, &domain.SearchResult{
			ID:       d.ID,
			Score:    float32(score),
			Content:  d.Content,
			Title:    d.Title,
			URL:      d.URL,
			Metadata: d.Metadata,
		})
	}
	return results, rows.Err()
}
