// Package reputation persists per-creator verification history in
// SQLite. The running stats it keeps feed the history factor of the
// credibility score and the creator profile endpoint.
package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toorcn/checkmate/internal/logging"
)

// Analysis is one recorded verification for a creator.
type Analysis struct {
	ID         int64     `json:"id"`
	Platform   string    `json:"platform"`
	Creator    string    `json:"creator"`
	URL        string    `json:"url,omitempty"`
	Verdict    string    `json:"verdict"`
	Rating     *float64  `json:"rating,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Stats is the rolled-up track record of one creator. AverageRating
// covers only analyses that produced a rating; degraded runs still
// count toward TotalAnalyses.
type Stats struct {
	Platform        string    `json:"platform"`
	Creator         string    `json:"creator"`
	TotalAnalyses   int       `json:"totalAnalyses"`
	RatedAnalyses   int       `json:"ratedAnalyses"`
	AverageRating   float64   `json:"averageRating"`
	VerifiedCount   int       `json:"verifiedCount"`
	MisleadingCount int       `json:"misleadingCount"`
	FalseCount      int       `json:"falseCount"`
	LastAnalyzedAt  time.Time `json:"lastAnalyzedAt"`
}

// Store handles persistence of creator analyses.
type Store struct {
	db *sql.DB
}

// Open creates or opens the reputation database. ":memory:" is
// supported for tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.Error("failed to open reputation database", "path", dbPath, "error", err)
		return nil, err
	}
	// A single connection sidesteps SQLITE_BUSY and keeps :memory:
	// databases from splitting across pool connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		logging.Error("failed to migrate reputation database", "error", err)
		return nil, err
	}

	logging.Info("reputation database ready", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS creator_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		creator TEXT NOT NULL,
		url TEXT,
		verdict TEXT NOT NULL,
		rating REAL,
		confidence REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_creator_analyses_creator ON creator_analyses(platform, creator, created_at DESC);

	CREATE TABLE IF NOT EXISTS creator_stats (
		platform TEXT NOT NULL,
		creator TEXT NOT NULL,
		total_analyses INTEGER NOT NULL DEFAULT 0,
		rated_count INTEGER NOT NULL DEFAULT 0,
		average_rating REAL NOT NULL DEFAULT 0,
		verified_count INTEGER NOT NULL DEFAULT 0,
		misleading_count INTEGER NOT NULL DEFAULT 0,
		false_count INTEGER NOT NULL DEFAULT 0,
		last_analyzed_at DATETIME,
		PRIMARY KEY (platform, creator)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordAnalysis stores one verification and folds it into the
// creator's running stats in the same transaction.
func (s *Store) RecordAnalysis(ctx context.Context, a Analysis) error {
	creator := normalizeCreator(a.Creator)
	if creator == "" || a.Platform == "" {
		return fmt.Errorf("reputation: platform and creator are required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO creator_analyses (platform, creator, url, verdict, rating, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.Platform, creator, a.URL, a.Verdict, a.Rating, a.Confidence, a.CreatedAt)
	if err != nil {
		return err
	}

	verified := btoi(a.Verdict == "verified")
	misleading := btoi(a.Verdict == "misleading")
	falsified := btoi(a.Verdict == "false" || a.Verdict == "debunked")

	if a.Rating != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO creator_stats (platform, creator, total_analyses, rated_count, average_rating, verified_count, misleading_count, false_count, last_analyzed_at)
			VALUES (?, ?, 1, 1, ?, ?, ?, ?, ?)
			ON CONFLICT(platform, creator) DO UPDATE SET
				average_rating = (creator_stats.average_rating * creator_stats.rated_count + excluded.average_rating) / (creator_stats.rated_count + 1),
				rated_count = creator_stats.rated_count + 1,
				total_analyses = creator_stats.total_analyses + 1,
				verified_count = creator_stats.verified_count + excluded.verified_count,
				misleading_count = creator_stats.misleading_count + excluded.misleading_count,
				false_count = creator_stats.false_count + excluded.false_count,
				last_analyzed_at = excluded.last_analyzed_at
		`, a.Platform, creator, *a.Rating, verified, misleading, falsified, a.CreatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO creator_stats (platform, creator, total_analyses, rated_count, average_rating, verified_count, misleading_count, false_count, last_analyzed_at)
			VALUES (?, ?, 1, 0, 0, ?, ?, ?, ?)
			ON CONFLICT(platform, creator) DO UPDATE SET
				total_analyses = creator_stats.total_analyses + 1,
				verified_count = creator_stats.verified_count + excluded.verified_count,
				misleading_count = creator_stats.misleading_count + excluded.misleading_count,
				false_count = creator_stats.false_count + excluded.false_count,
				last_analyzed_at = excluded.last_analyzed_at
		`, a.Platform, creator, verified, misleading, falsified, a.CreatedAt)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// History returns a creator's most recent analyses, newest first.
func (s *Store) History(ctx context.Context, platformName, creator string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, creator, url, verdict, rating, confidence, created_at
		FROM creator_analyses
		WHERE platform = ? AND creator = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, platformName, normalizeCreator(creator), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var (
			a      Analysis
			url    sql.NullString
			rating sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.Platform, &a.Creator, &url, &a.Verdict, &rating, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.URL = url.String
		if rating.Valid {
			v := rating.Float64
			a.Rating = &v
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// Stats returns the rolled-up record for a creator, or nil when the
// creator has never been analyzed.
func (s *Store) Stats(ctx context.Context, platformName, creator string) (*Stats, error) {
	var (
		st   Stats
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT platform, creator, total_analyses, rated_count, average_rating, verified_count, misleading_count, false_count, last_analyzed_at
		FROM creator_stats
		WHERE platform = ? AND creator = ?
	`, platformName, normalizeCreator(creator)).Scan(
		&st.Platform,
		&st.Creator,
		&st.TotalAnalyses,
		&st.RatedAnalyses,
		&st.AverageRating,
		&st.VerifiedCount,
		&st.MisleadingCount,
		&st.FalseCount,
		&last,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.LastAnalyzedAt = last.Time
	return &st, nil
}

// Overview is the whole-store rollup shown by the stats command.
type Overview struct {
	TotalAnalyses   int `json:"totalAnalyses"`
	Creators        int `json:"creators"`
	VerifiedCount   int `json:"verifiedCount"`
	MisleadingCount int `json:"misleadingCount"`
	FalseCount      int `json:"falseCount"`
}

// Overview aggregates across every creator.
func (s *Store) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT platform || '/' || creator),
			COALESCE(SUM(CASE WHEN verdict = 'verified' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verdict = 'misleading' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verdict IN ('false', 'debunked') THEN 1 ELSE 0 END), 0)
		FROM creator_analyses
	`).Scan(&o.TotalAnalyses, &o.Creators, &o.VerifiedCount, &o.MisleadingCount, &o.FalseCount)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// TopCreators lists the most-analyzed creators, busiest first.
func (s *Store) TopCreators(ctx context.Context, limit int) ([]Stats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, creator, total_analyses, rated_count, average_rating, verified_count, misleading_count, false_count, last_analyzed_at
		FROM creator_stats
		ORDER BY total_analyses DESC, last_analyzed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var (
			st   Stats
			last sql.NullTime
		)
		if err := rows.Scan(&st.Platform, &st.Creator, &st.TotalAnalyses, &st.RatedAnalyses, &st.AverageRating, &st.VerifiedCount, &st.MisleadingCount, &st.FalseCount, &last); err != nil {
			return nil, err
		}
		st.LastAnalyzedAt = last.Time
		out = append(out, st)
	}
	return out, rows.Err()
}

// Rollup recomputes creator_stats from the analysis log. The
// incremental upserts keep stats current between rollups; this repairs
// any drift and drops stats for creators whose analyses were purged.
func (s *Store) Rollup(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM creator_stats
		WHERE (platform, creator) NOT IN (SELECT DISTINCT platform, creator FROM creator_analyses)
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO creator_stats (platform, creator, total_analyses, rated_count, average_rating, verified_count, misleading_count, false_count, last_analyzed_at)
		SELECT
			platform,
			creator,
			COUNT(*),
			COUNT(rating),
			COALESCE(AVG(rating), 0),
			SUM(CASE WHEN verdict = 'verified' THEN 1 ELSE 0 END),
			SUM(CASE WHEN verdict = 'misleading' THEN 1 ELSE 0 END),
			SUM(CASE WHEN verdict IN ('false', 'debunked') THEN 1 ELSE 0 END),
			MAX(created_at)
		FROM creator_analyses
		GROUP BY platform, creator
	`)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Debug("creator stats rolled up")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeCreator(creator string) string {
	creator = strings.TrimSpace(strings.ToLower(creator))
	return strings.TrimPrefix(creator, "@")
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
