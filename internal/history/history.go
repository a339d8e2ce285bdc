package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pricescout/product-finder/internal/database"
	"github.com/pricescout/product-finder/internal/models"
)

// Record is one persisted search.
type Record struct {
	ID                  uuid.UUID         `json:"id"`
	SessionID           string            `json:"session_id,omitempty"`
	Brand               string            `json:"brand"`
	Model               string            `json:"model"`
	MaxPrice            float64           `json:"max_price"`
	TotalFound          int               `json:"total_found"`
	AfterFiltering      int               `json:"after_filtering"`
	SuccessfulPlatforms []models.Platform `json:"successful_platforms"`
	FailedPlatforms     []models.Platform `json:"failed_platforms"`
	BestPrice           float64           `json:"best_price"`
	Status              string            `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Stats summarizes a session's (or all) searches.
type Stats struct {
	TotalSearches      int            `json:"total_searches"`
	SuccessfulSearches int            `json:"successful_searches"`
	FailedSearches     int            `json:"failed_searches"`
	MostSearchedBrand  string         `json:"most_searched_brand,omitempty"`
	AverageResults     float64        `json:"average_results"`
	BrandDistribution  map[string]int `json:"brand_distribution,omitempty"`
}

// Repository persists search history in postgres.
type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger.With("component", "search_history"),
	}
}

// Migrate creates the search_history table when it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_history (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL,
			model TEXT NOT NULL,
			max_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_found INT NOT NULL DEFAULT 0,
			after_filtering INT NOT NULL DEFAULT 0,
			successful_platforms TEXT[] NOT NULL DEFAULT '{}',
			failed_platforms TEXT[] NOT NULL DEFAULT '{}',
			best_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create search_history table: %w", err)
	}
	return nil
}

// RecordSearch stores one completed search and returns its id.
func (r *Repository) RecordSearch(ctx context.Context, sessionID string, outcome models.SearchOutcome) (uuid.UUID, error) {
	id := uuid.New()

	query := `
		INSERT INTO search_history
		(id, session_id, brand, model, max_price, total_found, after_filtering,
		 successful_platforms, failed_platforms, best_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		id,
		sessionID,
		outcome.Criteria.Brand,
		outcome.Criteria.Model,
		outcome.Criteria.MaxPrice,
		outcome.Summary.TotalProductsFound,
		outcome.Summary.AfterFiltering,
		platformStrings(outcome.Summary.SuccessfulPlatforms),
		platformStrings(outcome.Summary.FailedPlatforms),
		outcome.BestPrice(),
		string(outcome.Status),
		time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record search: %w", err)
	}

	r.logger.Info("search recorded", "id", id, "session_id", sessionID)
	return id, nil
}

// Recent returns the newest searches first. An empty sessionID returns
// history across all sessions.
func (r *Repository) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, session_id, brand, model, max_price, total_found, after_filtering,
		       successful_platforms, failed_platforms, best_price, status, created_at
		FROM search_history
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var successful, failed []string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Brand, &rec.Model, &rec.MaxPrice,
			&rec.TotalFound, &rec.AfterFiltering, &successful, &failed,
			&rec.BestPrice, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.SuccessfulPlatforms = toPlatforms(successful)
		rec.FailedPlatforms = toPlatforms(failed)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	return records, nil
}

// SessionStats aggregates search statistics, optionally scoped to one
// session.
func (r *Repository) SessionStats(ctx context.Context, sessionID string) (Stats, error) {
	stats := Stats{BrandDistribution: make(map[string]int)}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status <> 'success'),
		       COALESCE(AVG(after_filtering) FILTER (WHERE status = 'success'), 0)
		FROM search_history
		WHERE ($1 = '' OR session_id = $1)
	`
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&stats.TotalSearches,
		&stats.SuccessfulSearches,
		&stats.FailedSearches,
		&stats.AverageResults,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query search stats: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT brand, COUNT(*)
		FROM search_history
		WHERE ($1 = '' OR session_id = $1) AND status = 'success'
		GROUP BY brand
		ORDER BY COUNT(*) DESC
	`, sessionID)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query brand distribution: %w", err)
	}
	defer rows.Close()

	first := true
	for rows.Next() {
		var brand string
		var count int
		if err := rows.Scan(&brand, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan brand row: %w", err)
		}
		stats.BrandDistribution[brand] = count
		if first {
			stats.MostSearchedBrand = brand
			first = false
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to iterate brand rows: %w", err)
	}

	return stats, nil
}

func platformStrings(platforms []models.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func toPlatforms(tags []string) []models.Platform {
	out := make([]models.Platform, len(tags))
	for i, tag := range tags {
		out[i] = models.Platform(tag)
	}
	return out
}
