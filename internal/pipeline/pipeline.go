// Package pipeline runs the fixed four-stage verification flow:
// extract, transcribe, fact-check, score. Every platform shares the
// same stage order; platforms differ only in the capability set they
// register. Failure policy is per stage: extraction failures kill the
// request, everything downstream degrades instead of aborting.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toorcn/checkmate/internal/credibility"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/factcheck"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/origin"
	"github.com/toorcn/checkmate/internal/otel"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/ratelimit"
	"github.com/toorcn/checkmate/internal/reputation"
	"github.com/toorcn/checkmate/internal/resilience"
	"github.com/toorcn/checkmate/internal/transcribe"
	"github.com/toorcn/checkmate/internal/verdict"
)

// Stage names one pipeline stage.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageTranscribe Stage = "transcribe"
	StageFactCheck  Stage = "factcheck"
	StageScore      Stage = "score"
)

// StageStatus is reported to progress observers as a stage moves.
type StageStatus string

const (
	StatusRunning  StageStatus = "running"
	StatusDone     StageStatus = "done"
	StatusSkipped  StageStatus = "skipped"
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
)

// ProgressFunc observes stage transitions. Used by the TUI; nil is fine.
type ProgressFunc func(stage Stage, status StageStatus)

// Context is the immutable per-request record threaded through every
// stage.
type Context struct {
	RequestID string
	UserID    string
	Platform  platform.Kind
	URL       string
	StartTime time.Time
}

// Extractor turns a URL into normalized content.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Content, error)
}

// Transcriber turns extracted media into a transcript. A nil result
// with a nil error means there was nothing to transcribe.
type Transcriber interface {
	Available() bool
	Transcribe(ctx context.Context, content *extract.Content) (*transcribe.Result, error)
}

// FactChecker verifies extracted content against web evidence.
type FactChecker interface {
	Check(ctx context.Context, content *extract.Content, transcript *transcribe.Result) (*factcheck.Result, error)
}

// Capabilities is what one platform brings to the shared pipeline.
// ExtractGuard carries the breaker for that platform's extraction
// dependency; transcription and fact-checking share pipeline-level
// guards because their dependencies are shared across platforms.
type Capabilities struct {
	Extract      Extractor
	ExtractGuard resilience.Guard
	Transcribe   Transcriber // nil when the platform never has media
	FactCheck    FactChecker
}

// StageTiming records how long one executed stage took and whether it
// completed cleanly. Skipped stages are not recorded.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
	OK       bool          `json:"ok"`
}

// Result is the assembled outcome of one verification.
type Result struct {
	RequestID                string              `json:"requestId"`
	URL                      string              `json:"url"`
	Platform                 platform.Kind       `json:"platform"`
	Metadata                 *extract.Content    `json:"metadata"`
	Transcription            *transcribe.Result  `json:"transcription,omitempty"`
	FactCheck                *factcheck.Result   `json:"factCheck,omitempty"`
	RequiresFactCheck        bool                `json:"requiresFactCheck"`
	CreatorCredibilityRating *float64            `json:"creatorCredibilityRating,omitempty"`
	Factors                  []string            `json:"factors,omitempty"`
	OriginTracing            *origin.Tracing     `json:"originTracing,omitempty"`
	StageTimings             []StageTiming       `json:"stageTimings"`
	Duration                 time.Duration       `json:"duration"`
}

// ReputationStore is the slice of the reputation store the pipeline
// needs: history in, analysis out. Nil disables both.
type ReputationStore interface {
	Stats(ctx context.Context, platformName, creator string) (*reputation.Stats, error)
	RecordAnalysis(ctx context.Context, a reputation.Analysis) error
}

// EventSink receives completed verifications. Nil disables publishing.
type EventSink interface {
	PublishVerification(res *Result)
}

// Options wires the pipeline's shared collaborators. Everything except
// the guards is optional.
type Options struct {
	TranscribeGuard resilience.Guard
	FactCheckGuard  resilience.Guard
	Limiter         *ratelimit.Limiter
	Reputation      ReputationStore
	Events          EventSink
	Obs             *otel.Logger
}

// Pipeline is the orchestrator. Construct one at the wiring root and
// share it across requests; per-request state lives on the stack.
type Pipeline struct {
	caps map[platform.Kind]Capabilities

	transcribeGuard resilience.Guard
	factCheckGuard  resilience.Guard
	limiter         *ratelimit.Limiter
	reputation      ReputationStore
	events          EventSink
	obs             *otel.Logger
	now             func() time.Time
}

// New creates an empty pipeline; platforms attach via Register.
func New(opts Options) *Pipeline {
	return &Pipeline{
		caps:            make(map[platform.Kind]Capabilities),
		transcribeGuard: opts.TranscribeGuard,
		factCheckGuard:  opts.FactCheckGuard,
		limiter:         opts.Limiter,
		reputation:      opts.Reputation,
		events:          opts.Events,
		obs:             opts.Obs,
		now:             time.Now,
	}
}

// Register attaches a platform's capabilities. Registering the same
// platform twice replaces the earlier entry.
func (p *Pipeline) Register(kind platform.Kind, caps Capabilities) {
	p.caps[kind] = caps
}

// Supports reports whether a platform has registered capabilities.
func (p *Pipeline) Supports(kind platform.Kind) bool {
	_, ok := p.caps[kind]
	return ok
}

// Process verifies one URL. Only validation errors and extraction
// failures surface as errors; every later stage degrades into the
// Result instead. notify may be nil.
func (p *Pipeline) Process(ctx context.Context, rawURL string, id ratelimit.Identity, notify ProgressFunc) (*Result, error) {
	kind, _, err := platform.Detect(rawURL)
	if err != nil {
		return nil, err
	}
	caps, ok := p.caps[kind]
	if !ok {
		return nil, &platform.ValidationError{Field: "platform", Reason: "unsupported platform " + kind.String()}
	}

	pctx := Context{
		RequestID: uuid.NewString(),
		UserID:    id.Key,
		Platform:  kind,
		URL:       rawURL,
		StartTime: p.now().UTC(),
	}
	res := &Result{RequestID: pctx.RequestID, URL: rawURL, Platform: kind}

	p.emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindVerifyStart, Comp: "pipeline", RequestID: pctx.RequestID, Platform: kind.String()})

	content, err := p.runExtract(ctx, caps, pctx, res, notify)
	if err != nil {
		p.emit(otel.Event{Level: otel.LevelError, Kind: otel.KindVerifyError, Comp: "pipeline", RequestID: pctx.RequestID, Platform: kind.String(), Stage: string(StageExtract), Err: err.Error()})
		return nil, err
	}
	res.Metadata = content

	res.Transcription = p.runTranscribe(ctx, caps, pctx, id, res, content, notify)

	claim := claimText(content, res.Transcription)
	res.RequiresFactCheck = claim != ""
	if res.RequiresFactCheck {
		res.FactCheck = p.runFactCheck(ctx, caps, pctx, id, res, content, notify)
	} else {
		p.stageEvent(pctx, StageFactCheck, otel.KindStageSkipped, 0, "nothing to check")
		progress(notify, StageFactCheck, StatusSkipped)
	}
	if res.FactCheck != nil {
		res.OriginTracing = res.FactCheck.OriginTracing
	}

	p.runScore(ctx, pctx, res, content, claim, notify)

	res.Duration = p.now().UTC().Sub(pctx.StartTime)

	p.record(ctx, pctx, res, content)
	if p.events != nil {
		p.events.PublishVerification(res)
	}

	ev := otel.Event{Level: otel.LevelInfo, Kind: otel.KindVerifyComplete, Comp: "pipeline", RequestID: pctx.RequestID, Platform: kind.String(), Dur: res.Duration}
	if res.FactCheck != nil {
		ev.Verdict = res.FactCheck.Verdict
	}
	if res.CreatorCredibilityRating != nil {
		ev.Score = *res.CreatorCredibilityRating
	}
	p.emit(ev)
	return res, nil
}

// runExtract is the only stage allowed to fail the request. Whatever
// the extractor returns is normalized into a typed *extract.Error so
// the boundary can map it.
func (p *Pipeline) runExtract(ctx context.Context, caps Capabilities, pctx Context, res *Result, notify ProgressFunc) (*extract.Content, error) {
	progress(notify, StageExtract, StatusRunning)
	start := p.now()

	var content *extract.Content
	err := caps.ExtractGuard.Do(ctx, func(ctx context.Context) error {
		c, err := caps.Extract.Extract(ctx, pctx.URL)
		if err != nil {
			return err
		}
		content = c
		return nil
	})
	dur := p.now().Sub(start)
	res.StageTimings = append(res.StageTimings, StageTiming{Stage: StageExtract, Duration: dur, OK: err == nil})

	if err != nil {
		progress(notify, StageExtract, StatusFailed)
		var exErr *extract.Error
		if errors.As(err, &exErr) {
			return nil, err
		}
		return nil, &extract.Error{Platform: pctx.Platform, URL: pctx.URL, Cause: err}
	}

	p.stageEvent(pctx, StageExtract, otel.KindStageComplete, dur, "")
	progress(notify, StageExtract, StatusDone)
	return content, nil
}

// runTranscribe never fails the request: no media, no transcriber, a
// rate-limit rejection, or a vendor failure all degrade to a nil
// transcript and the fact-check falls back to title/description text.
func (p *Pipeline) runTranscribe(ctx context.Context, caps Capabilities, pctx Context, id ratelimit.Identity, res *Result, content *extract.Content, notify ProgressFunc) *transcribe.Result {
	if caps.Transcribe == nil || !caps.Transcribe.Available() || !content.HasMedia() {
		p.stageEvent(pctx, StageTranscribe, otel.KindStageSkipped, 0, "no media")
		progress(notify, StageTranscribe, StatusSkipped)
		return nil
	}
	if p.limiter != nil {
		if err := p.limiter.Check(ctx, id, ratelimit.OpTranscribe); err != nil {
			logging.Warn("transcription rate limited", "requestId", pctx.RequestID, "error", err)
			p.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRateLimitReject, Comp: "pipeline", RequestID: pctx.RequestID, Stage: string(StageTranscribe)})
			progress(notify, StageTranscribe, StatusDegraded)
			return nil
		}
	}

	progress(notify, StageTranscribe, StatusRunning)
	start := p.now()

	var transcript *transcribe.Result
	err := p.transcribeGuard.Do(ctx, func(ctx context.Context) error {
		t, err := caps.Transcribe.Transcribe(ctx, content)
		if err != nil {
			return err
		}
		transcript = t
		return nil
	})
	dur := p.now().Sub(start)
	res.StageTimings = append(res.StageTimings, StageTiming{Stage: StageTranscribe, Duration: dur, OK: err == nil})

	if err != nil {
		logging.Warn("transcription failed, continuing without transcript", "requestId", pctx.RequestID, "error", err)
		p.stageEvent(pctx, StageTranscribe, otel.KindStageDegraded, dur, err.Error())
		progress(notify, StageTranscribe, StatusDegraded)
		return nil
	}

	p.stageEvent(pctx, StageTranscribe, otel.KindStageComplete, dur, "")
	progress(notify, StageTranscribe, StatusDone)
	return transcript
}

// runFactCheck degrades instead of failing: on any error the result is
// an unverified verdict at zero confidence carrying a flag that tells
// the caller whether the service was unreachable or something broke.
func (p *Pipeline) runFactCheck(ctx context.Context, caps Capabilities, pctx Context, id ratelimit.Identity, res *Result, content *extract.Content, notify ProgressFunc) *factcheck.Result {
	if p.limiter != nil {
		if err := p.limiter.Check(ctx, id, ratelimit.OpFactCheck); err != nil {
			p.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRateLimitReject, Comp: "pipeline", RequestID: pctx.RequestID, Stage: string(StageFactCheck)})
			progress(notify, StageFactCheck, StatusDegraded)
			return degradedFactCheck(err, p.now())
		}
	}

	progress(notify, StageFactCheck, StatusRunning)
	start := p.now()

	var fc *factcheck.Result
	err := p.factCheckGuard.Do(ctx, func(ctx context.Context) error {
		out, err := caps.FactCheck.Check(ctx, content, res.Transcription)
		if err != nil {
			return err
		}
		fc = out
		return nil
	})
	dur := p.now().Sub(start)
	res.StageTimings = append(res.StageTimings, StageTiming{Stage: StageFactCheck, Duration: dur, OK: err == nil})

	if err != nil {
		logging.Warn("fact-check failed, returning degraded result", "requestId", pctx.RequestID, "error", err)
		p.stageEvent(pctx, StageFactCheck, otel.KindStageDegraded, dur, err.Error())
		progress(notify, StageFactCheck, StatusDegraded)
		return degradedFactCheck(err, p.now())
	}

	p.stageEvent(pctx, StageFactCheck, otel.KindStageComplete, dur, "")
	progress(notify, StageFactCheck, StatusDone)
	return fc
}

// runScore computes the credibility rating. Scoring is pure, so the
// only failure mode is having nothing to score; the rating is simply
// omitted then.
func (p *Pipeline) runScore(ctx context.Context, pctx Context, res *Result, content *extract.Content, claim string, notify ProgressFunc) {
	if res.FactCheck == nil {
		p.stageEvent(pctx, StageScore, otel.KindStageSkipped, 0, "no fact-check to score")
		progress(notify, StageScore, StatusSkipped)
		return
	}

	progress(notify, StageScore, StatusRunning)
	start := p.now()

	in := credibility.Input{
		Verdict:               res.FactCheck.Verdict,
		Confidence:            res.FactCheck.Confidence,
		Platform:              pctx.Platform,
		ClaimLength:           len(claim),
		Transcribed:           res.Transcription != nil,
		TranscriptionRequired: content.HasMedia(),
		History:               p.history(ctx, pctx, content),
		Sentiment:             res.FactCheck.Sentiment,
	}
	for _, s := range res.FactCheck.Sources {
		in.Sources = append(in.Sources, credibility.Source{Credibility: s.Credibility, Relevance: s.Relevance})
	}

	rating := credibility.Score(in)
	res.CreatorCredibilityRating = &rating.Value
	res.Factors = rating.Factors

	dur := p.now().Sub(start)
	res.StageTimings = append(res.StageTimings, StageTiming{Stage: StageScore, Duration: dur, OK: true})
	p.stageEvent(pctx, StageScore, otel.KindStageComplete, dur, "")
	progress(notify, StageScore, StatusDone)
}

// history looks up the creator's track record. A store miss or error
// just means the history factor stays neutral.
func (p *Pipeline) history(ctx context.Context, pctx Context, content *extract.Content) *credibility.History {
	if p.reputation == nil || content.CreatorHandle == "" {
		return nil
	}
	stats, err := p.reputation.Stats(ctx, pctx.Platform.String(), content.CreatorHandle)
	if err != nil {
		logging.Warn("creator history lookup failed", "creator", content.CreatorHandle, "error", err)
		return nil
	}
	if stats == nil {
		return nil
	}
	return &credibility.History{AverageRating: stats.AverageRating, Total: stats.TotalAnalyses}
}

// record persists the outcome into the creator's history, best-effort.
func (p *Pipeline) record(ctx context.Context, pctx Context, res *Result, content *extract.Content) {
	if p.reputation == nil || content.CreatorHandle == "" || res.FactCheck == nil {
		return
	}
	err := p.reputation.RecordAnalysis(ctx, reputation.Analysis{
		Platform:   pctx.Platform.String(),
		Creator:    content.CreatorHandle,
		URL:        pctx.URL,
		Verdict:    res.FactCheck.Verdict,
		Rating:     res.CreatorCredibilityRating,
		Confidence: res.FactCheck.Confidence,
	})
	if err != nil {
		logging.Warn("failed to record analysis", "creator", content.CreatorHandle, "error", err)
		p.emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "pipeline", RequestID: pctx.RequestID, Err: err.Error()})
		return
	}
	p.emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindReputationRecord, Comp: "pipeline", RequestID: pctx.RequestID})
}

// degradedFactCheck is the documented fallback for a failed check:
// unverified at zero confidence, flagged so callers can tell "service
// was down" from "something broke".
func degradedFactCheck(err error, now time.Time) *factcheck.Result {
	flag := "technical_error"
	var openErr *resilience.BreakerOpenError
	var timeoutErr *resilience.TimeoutError
	var limitErr *ratelimit.Error
	switch {
	case errors.As(err, &openErr), errors.As(err, &timeoutErr), errors.As(err, &limitErr):
		flag = "service_unavailable"
	case resilience.DefaultShouldRetry(err):
		// Network-class errors read as the service being unreachable.
		flag = "service_unavailable"
	}
	return &factcheck.Result{
		Verdict:     verdict.Unverified,
		Confidence:  0,
		Explanation: "The fact-check service could not evaluate this claim.",
		Flags:       []string{flag},
		CheckedAt:   now.UTC(),
	}
}

func claimText(content *extract.Content, transcript *transcribe.Result) string {
	if transcript != nil && strings.TrimSpace(transcript.Text) != "" {
		return strings.TrimSpace(content.Title + "\n\n" + transcript.Text)
	}
	return strings.TrimSpace(content.ClaimText())
}

func progress(notify ProgressFunc, stage Stage, status StageStatus) {
	if notify != nil {
		notify(stage, status)
	}
}

func (p *Pipeline) emit(e otel.Event) {
	if p.obs != nil {
		p.obs.Emit(e)
	}
}

func (p *Pipeline) stageEvent(pctx Context, stage Stage, kind otel.EventKind, dur time.Duration, msg string) {
	level := otel.LevelDebug
	if kind == otel.KindStageDegraded {
		level = otel.LevelWarn
	}
	p.emit(otel.Event{
		Level:     level,
		Kind:      kind,
		Comp:      "pipeline",
		RequestID: pctx.RequestID,
		Platform:  pctx.Platform.String(),
		Stage:     string(stage),
		Dur:       dur,
		Msg:       msg,
	})
}
