package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nightjarlabs/nightjar/pkg/llm"
	"github.com/nightjarlabs/nightjar/pkg/report"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

type stubGenerator struct {
	reply   string
	err     error
	lastReq llm.GenRequest
	calls   int
}

func (g *stubGenerator) Reply(_ context.Context, req llm.GenRequest) (string, error) {
	g.calls++
	g.lastReq = req
	return g.reply, g.err
}

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string) (string, float64, error) {
	return llm.CategoryUPIFraud, 0.9, nil
}

type stubArchiver struct {
	saved chan report.FinalReport
}

func (a *stubArchiver) Save(_ context.Context, r report.FinalReport) error {
	a.saved <- r
	return nil
}

func newTestEngine(t *testing.T, gen llm.Generator, archiver Archiver) (*Engine, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	return New(Options{
		Store:     store,
		Generator: gen,
		Reports:   report.NewBuilder(report.SystemClock(), nil, stubClassifier{}),
		Archiver:  archiver,
	}), store
}

func TestHandleTurnSanitizedReply(t *testing.T) {
	gen := &stubGenerator{reply: "Can you verify this for me? I am worried? A bot helped"}
	e, _ := newTestEngine(t, gen, nil)

	res, err := e.HandleTurn(context.Background(), TurnRequest{
		SessionID: "s1",
		Sender:    "scammer",
		Text:      "your account is blocked",
	})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if strings.Count(res.Reply, "?") != 1 {
		t.Errorf("reply must carry a single question: %q", res.Reply)
	}
	if strings.Contains(strings.ToLower(res.Reply), "bot") {
		t.Errorf("banned vocabulary leaked: %q", res.Reply)
	}
	if res.Final != nil {
		t.Error("first turn must not finalize")
	}
}

func TestHandleTurnHintAndDeficits(t *testing.T) {
	gen := &stubGenerator{reply: "Okay, can you verify the details?"}
	e, _ := newTestEngine(t, gen, nil)

	if _, err := e.HandleTurn(context.Background(), TurnRequest{SessionID: "s2", Text: "hello"}); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if gen.lastReq.Hint != "reference/ticket number" {
		t.Errorf("first-turn hint = %q, want reference/ticket number", gen.lastReq.Hint)
	}
	if gen.lastReq.Turn != 1 {
		t.Errorf("turn = %d, want 1", gen.lastReq.Turn)
	}
	if !gen.lastReq.Deficits.Question || !gen.lastReq.Deficits.Investigative {
		t.Errorf("fresh session must report deficits, got %+v", gen.lastReq.Deficits)
	}
}

func TestHandleTurnFallbackOffPatchTurns(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	e, _ := newTestEngine(t, gen, nil)
	ctx := context.Background()

	var last TurnResult
	for i := 0; i < 4; i++ {
		var err error
		last, err = e.HandleTurn(ctx, TurnRequest{SessionID: "s3", Text: "pay the fee"})
		if err != nil {
			t.Fatalf("HandleTurn %d: %v", i+1, err)
		}
	}

	// Turn 4 is not a patch turn, so the raw fallback goes out.
	if last.Reply != FallbackReply {
		t.Errorf("turn 4 reply = %q, want fallback", last.Reply)
	}
}

func TestHandleTurnFallbackPatchedOnQuestionTurn(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	e, _ := newTestEngine(t, gen, nil)

	res, err := e.HandleTurn(context.Background(), TurnRequest{SessionID: "s4", Text: "pay now"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	// The fallback lacks investigative wording, so turn 1 rewrites it.
	if !strings.Contains(res.Reply, "verify this officially") {
		t.Errorf("turn 1 fallback must be patched investigative: %q", res.Reply)
	}
}

func TestHandleTurnAccumulatesState(t *testing.T) {
	gen := &stubGenerator{reply: "Can you verify which account this is?"}
	e, store := newTestEngine(t, gen, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.HandleTurn(ctx, TurnRequest{SessionID: "s5", Text: "share otp now"}); err != nil {
			t.Fatalf("HandleTurn: %v", err)
		}
	}

	snap, err := store.Snapshot(ctx, "s5")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.TurnCount != 2 {
		t.Errorf("TurnCount = %d, want 2", snap.TurnCount)
	}
	if snap.ScamScore != 12 {
		t.Errorf("ScamScore = %d, want 12 (6 per otp request)", snap.ScamScore)
	}
	if snap.Counters.Questions != 2 || snap.Counters.Investigative != 2 {
		t.Errorf("counters = %+v", snap.Counters)
	}
}

func TestFinalizeHardStop(t *testing.T) {
	gen := &stubGenerator{reply: "Okay, I will verify that officially, what number?"}
	e, _ := newTestEngine(t, gen, nil)
	ctx := context.Background()

	var finals []*report.FinalReport
	for i := 0; i < 11; i++ {
		res, err := e.HandleTurn(ctx, TurnRequest{SessionID: "s6", Text: "hello there"})
		if err != nil {
			t.Fatalf("HandleTurn %d: %v", i+1, err)
		}
		finals = append(finals, res.Final)
	}

	for i := 0; i < 9; i++ {
		if finals[i] != nil {
			t.Errorf("turn %d must not finalize", i+1)
		}
	}
	if finals[9] == nil {
		t.Fatal("turn 10 must finalize")
	}
	if finals[10] != nil {
		t.Error("a session finalizes exactly once")
	}

	final := finals[9]
	if final.SessionID != "s6" || final.Status != "completed" || !final.ScamDetected {
		t.Errorf("report header wrong: %+v", final)
	}
	if final.ScamType != llm.CategoryUPIFraud {
		t.Errorf("scamType = %q", final.ScamType)
	}
}

func TestFinalizeEarlyWithRichIntel(t *testing.T) {
	gen := &stubGenerator{reply: "Okay, I will verify that officially, what number?"}
	e, _ := newTestEngine(t, gen, nil)
	ctx := context.Background()

	// Two high-value categories (link + payment handle) and a reference id.
	text := "open http://kyc.example/verify and pay scammer@fakeupi quoting REF-2234"

	var res TurnResult
	for i := 0; i < 8; i++ {
		var err error
		res, err = e.HandleTurn(ctx, TurnRequest{SessionID: "s7", Text: text})
		if err != nil {
			t.Fatalf("HandleTurn %d: %v", i+1, err)
		}
		if i < 7 && res.Final != nil {
			t.Fatalf("turn %d finalized too early", i+1)
		}
	}

	if res.Final == nil {
		t.Fatal("turn 8 with rich intel must finalize")
	}
	got := res.Final.ExtractedIntelligence
	if len(got.Links) != 1 || len(got.PaymentHandles) != 1 || len(got.ReferenceIDs) == 0 {
		t.Errorf("extracted intelligence incomplete: %+v", got)
	}
}

func TestFinalReportArchived(t *testing.T) {
	archiver := &stubArchiver{saved: make(chan report.FinalReport, 1)}
	gen := &stubGenerator{reply: "Okay, I will verify that officially, what number?"}
	e, _ := newTestEngine(t, gen, archiver)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := e.HandleTurn(ctx, TurnRequest{SessionID: "s8", Text: "hello"}); err != nil {
			t.Fatalf("HandleTurn: %v", err)
		}
	}

	select {
	case r := <-archiver.saved:
		if r.SessionID != "s8" {
			t.Errorf("archived session = %q", r.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("report was not archived")
	}
}

func TestJitterCancellable(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	e := New(Options{
		Store:     store,
		Generator: gen,
		Reports:   report.NewBuilder(report.SystemClock(), nil, stubClassifier{}),
		MinDelay:  5 * time.Second,
		MaxDelay:  10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.HandleTurn(ctx, TurnRequest{SessionID: "s9", Text: "hi"})
	if err == nil {
		t.Error("cancelled jitter must surface an error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took too long: %s", elapsed)
	}
	if gen.calls != 0 {
		t.Error("generation must not run after cancellation")
	}
}

func TestDistinctSessionsIsolated(t *testing.T) {
	gen := &stubGenerator{reply: "Can you verify which account this is?"}
	e, store := newTestEngine(t, gen, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("iso-%d", i)
		if _, err := e.HandleTurn(ctx, TurnRequest{SessionID: id, Text: "hello"}); err != nil {
			t.Fatalf("HandleTurn: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		snap, err := store.Snapshot(ctx, fmt.Sprintf("iso-%d", i))
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.TurnCount != 1 {
			t.Errorf("session %d TurnCount = %d, want 1", i, snap.TurnCount)
		}
	}
}
