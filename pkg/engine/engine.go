// Package engine orchestrates one conversation turn end to end: session
// bookkeeping, scoring, probe-topic selection, humanization delay, reply
// generation with guardrails, and finalization into an intelligence report.
package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/nightjarlabs/nightjar/pkg/httputil"
	"github.com/nightjarlabs/nightjar/pkg/intel"
	"github.com/nightjarlabs/nightjar/pkg/llm"
	"github.com/nightjarlabs/nightjar/pkg/logger"
	"github.com/nightjarlabs/nightjar/pkg/report"
	"github.com/nightjarlabs/nightjar/pkg/rubric"
	"github.com/nightjarlabs/nightjar/pkg/sanitize"
	"github.com/nightjarlabs/nightjar/pkg/score"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

// FallbackReply is sent whenever generation fails or sanitization leaves
// nothing usable. It keeps the conversation alive and still probes.
const FallbackReply = "Okay, I'm a bit confused - can you share the reference number for this?"

// archiveTimeout bounds each background report write.
const archiveTimeout = 10 * time.Second

// Archiver persists final reports. Implementations must be safe for
// concurrent use.
type Archiver interface {
	Save(ctx context.Context, r report.FinalReport) error
}

// TurnRequest is one inbound counterpart message with its conversation
// context.
type TurnRequest struct {
	SessionID string
	Sender    string
	Text      string
	History   []llm.HistoryItem
}

// TurnResult carries the decoy reply and, on the finalizing turn only, the
// session's report.
type TurnResult struct {
	Reply string
	Final *report.FinalReport
}

// Options wires an Engine.
type Options struct {
	Store     session.Store
	Scorer    *score.Scorer
	Generator llm.Generator
	Reports   *report.Builder
	Archiver  Archiver // optional
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Log       *logger.Logger
}

// Engine runs the per-turn pipeline.
type Engine struct {
	store      session.Store
	scorer     *score.Scorer
	gen        llm.Generator
	reports    *report.Builder
	archiver   Archiver
	archiveSem *httputil.Semaphore
	minDelay   time.Duration
	maxDelay   time.Duration
	log        *logger.Logger
	chatLog    *logger.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = score.NewDefault()
	}
	return &Engine{
		store:      opts.Store,
		scorer:     scorer,
		gen:        opts.Generator,
		reports:    opts.Reports,
		archiver:   opts.Archiver,
		archiveSem: httputil.NewSemaphore(32),
		minDelay:   opts.MinDelay,
		maxDelay:   opts.MaxDelay,
		log:        log.WithComponent("engine"),
		chatLog:    log.WithComponent("chat"),
	}
}

// HandleTurn processes one counterpart message and produces the decoy reply.
// The turn counter, score, and probe bookkeeping commit in a single atomic
// store update; the slow work (jitter, generation) runs outside any lock.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	e.chatLog.Info().Str("session_id", req.SessionID).Str("sender", req.Sender).Str("text", req.Text).Msg("incoming")

	messageScore := e.scorer.Score(req.Text)
	harvested := e.extract(req)

	var (
		turn     int
		hint     string
		counters session.Counters
	)
	_, err := e.store.Update(ctx, req.SessionID, func(s *session.Session) {
		s.TurnCount++
		s.ScamScore += messageScore
		turn = s.TurnCount
		counters = s.Counters
		hint = rubric.ChooseHint(s, req.Text, harvested)
	})
	if err != nil {
		return TurnResult{}, err
	}

	if err := e.jitter(ctx); err != nil {
		return TurnResult{}, err
	}

	reply := e.generate(ctx, req, hint, turn, counters)

	feats := rubric.CountFeatures(reply)
	snap, err := e.store.Update(ctx, req.SessionID, func(s *session.Session) {
		feats.Apply(&s.Counters)
	})
	if err != nil {
		return TurnResult{}, err
	}
	reply = rubric.EnforceMinimums(turn, reply, snap.Counters)

	e.chatLog.Info().Str("session_id", req.SessionID).Str("sender", "decoy").Str("text", reply).Msg("outgoing")

	final := e.maybeFinalize(ctx, req, turn, harvested)
	return TurnResult{Reply: reply, Final: final}, nil
}

// extract runs the preview extraction over everything seen so far.
func (e *Engine) extract(req TurnRequest) intel.Intelligence {
	texts := make([]string, 0, len(req.History)+1)
	for _, item := range req.History {
		texts = append(texts, item.Text)
	}
	texts = append(texts, req.Text)
	return intel.Extract(intel.JoinHistory(texts))
}

// jitter sleeps for a random interval in [minDelay, maxDelay], so replies
// land at a human-feeling pace. Cancellable via ctx.
func (e *Engine) jitter(ctx context.Context) error {
	if e.maxDelay <= 0 {
		return nil
	}
	delay := e.minDelay
	if spread := e.maxDelay - e.minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread) + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generate asks the model for the next reply. One attempt; any failure or an
// empty sanitized result falls back to the fixed probe.
func (e *Engine) generate(ctx context.Context, req TurnRequest, hint string, turn int, counters session.Counters) string {
	out, err := e.gen.Reply(ctx, llm.GenRequest{
		IncomingText: req.Text,
		History:      req.History,
		Hint:         hint,
		Turn:         turn,
		Deficits:     rubric.DeficitsFor(turn, counters),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("session_id", req.SessionID).Msg("generation failed, using fallback")
		return FallbackReply
	}

	reply := sanitize.Sanitize(out)
	if reply == "" {
		return FallbackReply
	}
	return reply
}

// maybeFinalize flips the session's finalized flag via an atomic
// check-and-set; only the winning turn builds and returns the report.
func (e *Engine) maybeFinalize(ctx context.Context, req TurnRequest, turn int, harvested intel.Intelligence) *report.FinalReport {
	if !report.ShouldFinalize(turn, intel.HighValueCount(harvested), len(harvested.ReferenceIDs)) {
		return nil
	}

	won := false
	snap, err := e.store.Update(ctx, req.SessionID, func(s *session.Session) {
		won = false
		if !s.Finalized {
			s.Finalized = true
			won = true
		}
	})
	if err != nil {
		e.log.Error().Err(err).Str("session_id", req.SessionID).Msg("finalize update failed")
		return nil
	}
	if !won {
		return nil
	}

	r := e.reports.Build(ctx, snap, req.History, req.Text)
	e.log.Info().
		Str("session_id", r.SessionID).
		Str("scam_type", r.ScamType).
		Int("total_messages", r.TotalMessagesExchanged).
		Msg("session finalized")

	e.archive(r)
	return &r
}

// archive hands the report to the archiver on a capped background goroutine.
func (e *Engine) archive(r report.FinalReport) {
	if e.archiver == nil {
		return
	}
	if !e.archiveSem.TryAcquire() {
		e.log.Warn().Str("session_id", r.SessionID).Msg("archive backlog full, dropping report write")
		return
	}
	go func() {
		defer e.archiveSem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := e.archiver.Save(ctx, r); err != nil {
			e.log.Error().Err(err).Str("session_id", r.SessionID).Msg("report archive failed")
		}
	}()
}
