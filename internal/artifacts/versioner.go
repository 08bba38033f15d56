package artifacts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
)

// ArtifactStore is the persistence boundary the versioner publishes
// through. Implementations prune history beyond the retention bound on
// write, oldest first.
type ArtifactStore interface {
	WriteArtifact(ctx context.Context, artifact *models.AnalysisArtifact) error
	ReadLatestArtifact(ctx context.Context) (*models.AnalysisArtifact, error)
	ReadArtifactHistory(ctx context.Context, limit int) ([]*models.AnalysisArtifact, error)
}

// Versioner decides whether a new analysis run is needed and publishes
// complete artifacts. Publication is serialized so the monotonic sequence
// and history eviction invariants hold with concurrent triggers.
type Versioner struct {
	store     ArtifactStore
	retention int
	logger    *logrus.Logger
	mu        sync.Mutex
}

// NewVersioner creates a versioner with a bounded most-recent-N history.
func NewVersioner(store ArtifactStore, retention int, logger *logrus.Logger) *Versioner {
	if retention < 1 {
		retention = 1
	}
	return &Versioner{store: store, retention: retention, logger: logger}
}

// ShouldRun reports whether the engines need to execute for the given
// input fingerprint. A fingerprint matching the most recently published
// artifact makes the run a no-op unless the caller forces a refresh.
func (v *Versioner) ShouldRun(ctx context.Context, fingerprint string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	latest, err := v.store.ReadLatestArtifact(ctx)
	if err != nil {
		return false, fmt.Errorf("reading latest artifact: %w", err)
	}
	if latest == nil {
		return true, nil
	}
	if latest.Fingerprint == fingerprint {
		v.logger.WithFields(logrus.Fields{
			"fingerprint": fingerprint,
			"sequence":    latest.Sequence,
			"last_run":    latest.CreatedAt.Format(time.RFC3339),
		}).Info("Input unchanged since last run, skipping")
		return false, nil
	}
	return true, nil
}

// Publish stamps the draft with the next sequence number, a run ID and
// the publication time, then writes it through the store in one step. A
// cancelled context publishes nothing and leaves the previous artifact
// untouched. Only complete artifacts ever reach the store, so consumers
// never observe a partial bundle.
func (v *Versioner) Publish(ctx context.Context, draft *models.AnalysisArtifact) (*models.AnalysisArtifact, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before publication: %w", err)
	}

	latest, err := v.store.ReadLatestArtifact(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading latest artifact: %w", err)
	}

	draft.Sequence = 1
	if latest != nil {
		draft.Sequence = latest.Sequence + 1
	}
	draft.RunID = uuid.New().String()
	draft.CreatedAt = time.Now().UTC()

	if err := v.store.WriteArtifact(ctx, draft); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}

	v.logger.WithFields(logrus.Fields{
		"sequence":    draft.Sequence,
		"run_id":      draft.RunID,
		"fingerprint": draft.Fingerprint,
	}).Info("Analysis artifact published")

	return draft, nil
}

// Latest returns the most recently published artifact, or nil when no run
// has published yet.
func (v *Versioner) Latest(ctx context.Context) (*models.AnalysisArtifact, error) {
	return v.store.ReadLatestArtifact(ctx)
}

// History returns up to limit past artifacts, newest first, bounded by
// the retention count.
func (v *Versioner) History(ctx context.Context, limit int) ([]*models.AnalysisArtifact, error) {
	if limit <= 0 || limit > v.retention {
		limit = v.retention
	}
	return v.store.ReadArtifactHistory(ctx, limit)
}

// Retention returns the configured history bound.
func (v *Versioner) Retention() int {
	return v.retention
}
