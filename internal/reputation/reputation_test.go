package reputation

import (
	"context"
	"math"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func TestRecordAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	analyses := []Analysis{
		{Platform: "tiktok", Creator: "@Newsy", Verdict: "verified", Rating: ptr(8.0), Confidence: 85},
		{Platform: "tiktok", Creator: "newsy", Verdict: "misleading", Rating: ptr(4.0), Confidence: 70},
		{Platform: "tiktok", Creator: "NEWSY", Verdict: "false", Rating: nil, Confidence: 0},
	}
	for i, a := range analyses {
		if err := s.RecordAnalysis(ctx, a); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	// Handle casing and @-prefix all fold onto one creator.
	stats, err := s.Stats(ctx, "tiktok", "@NEWSY")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats == nil {
		t.Fatal("stats = nil for recorded creator")
	}
	if stats.TotalAnalyses != 3 {
		t.Errorf("total = %d, want 3", stats.TotalAnalyses)
	}
	if stats.RatedAnalyses != 2 {
		t.Errorf("rated = %d, want 2", stats.RatedAnalyses)
	}
	if math.Abs(stats.AverageRating-6.0) > 1e-9 {
		t.Errorf("average = %v, want 6.0", stats.AverageRating)
	}
	if stats.VerifiedCount != 1 || stats.MisleadingCount != 1 || stats.FalseCount != 1 {
		t.Errorf("verdict counts = %d/%d/%d, want 1/1/1", stats.VerifiedCount, stats.MisleadingCount, stats.FalseCount)
	}
}

func TestStatsUnknownCreator(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background(), "web", "ghost")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != nil {
		t.Errorf("stats = %+v, want nil for unknown creator", stats)
	}
}

func TestRecordRequiresIdentity(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordAnalysis(context.Background(), Analysis{Platform: "web", Verdict: "verified"}); err == nil {
		t.Error("record without creator succeeded, want error")
	}
	if err := s.RecordAnalysis(context.Background(), Analysis{Creator: "x", Verdict: "verified"}); err == nil {
		t.Error("record without platform succeeded, want error")
	}
}

func TestHistoryOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"verified", "misleading", "false"} {
		if err := s.RecordAnalysis(ctx, Analysis{Platform: "web", Creator: "desk", Verdict: v}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	hist, err := s.History(ctx, "web", "desk", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	// Newest first; identical timestamps fall back to insertion order.
	if hist[0].Verdict != "false" {
		t.Errorf("newest verdict = %q, want false", hist[0].Verdict)
	}
}

func TestRollupRepairsDrift(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordAnalysis(ctx, Analysis{Platform: "web", Creator: "desk", Verdict: "verified", Rating: ptr(7.5)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Inject drift directly; Rollup must recompute from the log.
	if _, err := s.db.Exec(`UPDATE creator_stats SET average_rating = 1.0, total_analyses = 99`); err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	if err := s.Rollup(ctx); err != nil {
		t.Fatalf("rollup: %v", err)
	}
	stats, err := s.Stats(ctx, "web", "desk")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAnalyses != 1 {
		t.Errorf("total after rollup = %d, want 1", stats.TotalAnalyses)
	}
	if math.Abs(stats.AverageRating-7.5) > 1e-9 {
		t.Errorf("average after rollup = %v, want 7.5", stats.AverageRating)
	}
}

func TestOverviewAndTopCreators(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []Analysis{
		{Platform: "web", Creator: "busy", Verdict: "verified", Rating: ptr(8.0)},
		{Platform: "web", Creator: "busy", Verdict: "verified", Rating: ptr(7.0)},
		{Platform: "tiktok", Creator: "quiet", Verdict: "debunked"},
	}
	for _, a := range records {
		if err := s.RecordAnalysis(ctx, a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	o, err := s.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if o.TotalAnalyses != 3 || o.Creators != 2 {
		t.Errorf("overview = %+v, want 3 analyses across 2 creators", o)
	}
	if o.VerifiedCount != 2 || o.FalseCount != 1 {
		t.Errorf("overview counts = %+v, want 2 verified / 1 false", o)
	}

	top, err := s.TopCreators(ctx, 10)
	if err != nil {
		t.Fatalf("top creators: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top creators length = %d, want 2", len(top))
	}
	if top[0].Creator != "busy" {
		t.Errorf("busiest creator = %q, want busy", top[0].Creator)
	}
}

func TestOverviewEmptyStore(t *testing.T) {
	s := openTestStore(t)
	o, err := s.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if o.TotalAnalyses != 0 || o.Creators != 0 {
		t.Errorf("overview = %+v, want zeros", o)
	}
}
