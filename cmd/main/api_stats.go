package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_render (
    template_name TEXT PRIMARY KEY,
    renders       INTEGER NOT NULL DEFAULT 0,
    failures      INTEGER NOT NULL DEFAULT 0,
    total_ms      INTEGER NOT NULL DEFAULT 0,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
`

// TemplateStats is the per-template render record.
type TemplateStats struct {
	Template  string    `json:"template"`
	Renders   int64     `json:"renders"`
	Failures  int64     `json:"failures"`
	AverageMs float64   `json:"average_ms"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRenders   int64 `json:"total_renders"`
	TotalFailures  int64 `json:"total_failures"`
	UniqueTemplate int64 `json:"unique_templates"`
}

// StatsAPI records render outcomes and serves them back.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/templates", s.handleTopTemplates)
}

// RecordRender counts one render of name. A non-nil renderErr counts as a failure.
func (s *StatsAPI) RecordRender(ctx context.Context, name string, elapsed time.Duration, renderErr error) error {
	now := time.Now()
	failed := 0
	if renderErr != nil {
		failed = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats_render (template_name, renders, failures, total_ms, first_seen, last_seen) VALUES (?, 1, ?, ?, ?, ?)
        ON CONFLICT(template_name) DO UPDATE SET renders = renders + 1, failures = failures + excluded.failures,
            total_ms = total_ms + excluded.total_ms, last_seen = excluded.last_seen
    `, name, failed, elapsed.Milliseconds(), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_render: %w", err)
	}
	return nil
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}
	var summary GlobalStatsSummary
	err := s.db.QueryRowContext(r.Context(),
		"SELECT COALESCE(SUM(renders), 0), COALESCE(SUM(failures), 0), COUNT(*) FROM stats_render").
		Scan(&summary.TotalRenders, &summary.TotalFailures, &summary.UniqueTemplate)
	if err != nil {
		s.logger.Error("Failed to query render summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopTemplates(w http.ResponseWriter, r *http.Request) {
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}
	rows, err := s.db.QueryContext(r.Context(), "SELECT template_name, renders, failures, total_ms, first_seen, last_seen FROM stats_render ORDER BY renders DESC LIMIT 100")
	if err != nil {
		s.logger.Error("Failed to query template stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []TemplateStats{}
	for rows.Next() {
		var ts TemplateStats
		var totalMs int64
		if err = rows.Scan(&ts.Template, &ts.Renders, &ts.Failures, &totalMs, &ts.FirstSeen, &ts.LastSeen); err != nil {
			s.logger.Error("Failed to scan template stats", "error", err)
			continue
		}
		if ts.Renders > 0 {
			ts.AverageMs = float64(totalMs) / float64(ts.Renders)
		}
		results = append(results, ts)
	}
	respondWithJSON(w, http.StatusOK, results)
}
