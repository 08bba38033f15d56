package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/trendlens/trendlens-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store is the series store adapter: the sole persistence boundary for
// raw series reads and artifact publication. Raw values are stored as
// numerics and converted to float64 here, at the boundary.
type Store struct {
	pool      DatabasePool
	retention int
}

// NewStore creates a store that keeps at most retention artifacts.
func NewStore(pool DatabasePool, retention int) *Store {
	if retention < 1 {
		retention = 1
	}
	return &Store{pool: pool, retention: retention}
}

// artifactPayload is the JSON body persisted alongside the indexed
// artifact columns.
type artifactPayload struct {
	Parameters   models.AnalysisParameters `json:"parameters"`
	Correlations *models.CorrelationMatrix `json:"correlations"`
	Causality    []models.CausalityVerdict `json:"causality"`
	Forecasts    []models.ForecastResult   `json:"forecasts"`
}

// ReadSeries loads the named series over [start, end], enforcing the
// strictly-increasing timestamp invariant at the boundary.
func (s *Store) ReadSeries(ctx context.Context, name string, start, end time.Time) (models.Series, error) {
	query := `
		SELECT ts, value
		FROM series_observations
		WHERE series_name = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, name, start, end)
	if err != nil {
		return models.Series{}, fmt.Errorf("querying series %s: %w", name, err)
	}
	defer rows.Close()

	series := models.Series{Name: name}
	for rows.Next() {
		var ts time.Time
		var value decimal.Decimal
		if err := rows.Scan(&ts, &value); err != nil {
			return models.Series{}, fmt.Errorf("scanning series %s: %w", name, err)
		}
		series.Points = append(series.Points, models.Observation{
			Timestamp: ts,
			Value:     value.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return models.Series{}, fmt.Errorf("reading series %s: %w", name, err)
	}

	if err := series.Validate(); err != nil {
		return models.Series{}, err
	}
	return series, nil
}

// WriteArtifact persists a complete artifact and evicts history beyond
// the retention bound, oldest first. The bundle is written in a single
// insert so a reader never sees a partial artifact.
func (s *Store) WriteArtifact(ctx context.Context, artifact *models.AnalysisArtifact) error {
	payload, err := json.Marshal(artifactPayload{
		Parameters:   artifact.Parameters,
		Correlations: artifact.Correlations,
		Causality:    artifact.Causality,
		Forecasts:    artifact.Forecasts,
	})
	if err != nil {
		return fmt.Errorf("encoding artifact payload: %w", err)
	}

	insert := `
		INSERT INTO analysis_artifacts (seq, run_id, created_at, fingerprint, payload)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, insert, artifact.Sequence, artifact.RunID, artifact.CreatedAt, artifact.Fingerprint, payload); err != nil {
		return fmt.Errorf("inserting artifact seq %d: %w", artifact.Sequence, err)
	}

	prune := `
		DELETE FROM analysis_artifacts
		WHERE seq NOT IN (SELECT seq FROM analysis_artifacts ORDER BY seq DESC LIMIT $1)`
	if _, err := s.pool.Exec(ctx, prune, s.retention); err != nil {
		return fmt.Errorf("pruning artifact history: %w", err)
	}
	return nil
}

// ReadLatestArtifact returns the most recently published artifact, or
// nil when nothing has been published yet.
func (s *Store) ReadLatestArtifact(ctx context.Context) (*models.AnalysisArtifact, error) {
	query := `
		SELECT seq, run_id, created_at, fingerprint, payload
		FROM analysis_artifacts
		ORDER BY seq DESC
		LIMIT 1`

	artifact, err := s.scanArtifact(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest artifact: %w", err)
	}
	return artifact, nil
}

// ReadArtifactHistory returns up to limit artifacts, newest first.
func (s *Store) ReadArtifactHistory(ctx context.Context, limit int) ([]*models.AnalysisArtifact, error) {
	if limit <= 0 || limit > s.retention {
		limit = s.retention
	}
	query := `
		SELECT seq, run_id, created_at, fingerprint, payload
		FROM analysis_artifacts
		ORDER BY seq DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying artifact history: %w", err)
	}
	defer rows.Close()

	var history []*models.AnalysisArtifact
	for rows.Next() {
		artifact, err := s.scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("reading artifact history: %w", err)
		}
		history = append(history, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading artifact history: %w", err)
	}
	return history, nil
}

func (s *Store) scanArtifact(row pgx.Row) (*models.AnalysisArtifact, error) {
	var artifact models.AnalysisArtifact
	var raw []byte
	if err := row.Scan(&artifact.Sequence, &artifact.RunID, &artifact.CreatedAt, &artifact.Fingerprint, &raw); err != nil {
		return nil, err
	}

	var payload artifactPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding artifact payload: %w", err)
	}
	artifact.Parameters = payload.Parameters
	artifact.Correlations = payload.Correlations
	artifact.Causality = payload.Causality
	artifact.Forecasts = payload.Forecasts
	return &artifact, nil
}
