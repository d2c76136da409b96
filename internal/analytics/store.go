package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store persists periodic AggregatedStats snapshots so analytics survive a
// restart. It expects:
//
//	CREATE TABLE analytics_snapshots (
//	    id          BIGSERIAL PRIMARY KEY,
//	    data        JSONB NOT NULL,
//	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) Save(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*AggregatedStats, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// RunPeriodicSave saves agg's stats every interval and once more when ctx
// ends. It blocks.
func (s *Store) RunPeriodicSave(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic analytics snapshot started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(shutdownCtx, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}

// Restore seeds agg's counters from the latest saved snapshot.
func (s *Store) Restore(ctx context.Context, agg *Aggregator) error {
	latest, err := s.Latest(ctx)
	if err != nil || latest == nil {
		return err
	}
	agg.mu.Lock()
	defer agg.mu.Unlock()
	agg.stats.TotalSearches = latest.TotalSearches
	agg.stats.CacheHits = latest.CacheHits
	agg.stats.CacheMisses = latest.CacheMisses
	agg.stats.ZeroResultCount = latest.ZeroResultCount
	agg.stats.Rebuilds = latest.Rebuilds
	agg.stats.FailedRebuilds = latest.FailedRebuilds
	for _, qc := range latest.TopQueries {
		agg.queryCounts[qc.Query] += qc.Count
	}
	for _, qc := range latest.ZeroResultQueries {
		agg.zeroResultQueries[qc.Query] += qc.Count
	}
	s.logger.Info("analytics restored", "total_searches", latest.TotalSearches)
	return nil
}
