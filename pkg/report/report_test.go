package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nightjarlabs/nightjar/pkg/llm"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type stubClassifier struct {
	scamType   string
	confidence float64
	err        error
	calls      int
}

func (s *stubClassifier) Classify(context.Context, string) (string, float64, error) {
	s.calls++
	return s.scamType, s.confidence, s.err
}

func TestShouldFinalize(t *testing.T) {
	testCases := []struct {
		name      string
		turn      int
		highValue int
		refIDs    int
		want      bool
	}{
		{"hard stop", 10, 0, 0, true},
		{"past hard stop", 12, 0, 0, true},
		{"early with enough intel", 8, 2, 1, true},
		{"early missing reference", 8, 3, 0, false},
		{"early missing high value", 8, 1, 2, false},
		{"too early despite intel", 7, 5, 3, false},
		{"mid conversation", 5, 0, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldFinalize(tc.turn, tc.highValue, tc.refIDs); got != tc.want {
				t.Errorf("ShouldFinalize(%d, %d, %d) = %v, want %v", tc.turn, tc.highValue, tc.refIDs, got, tc.want)
			}
		})
	}
}

func historyOf(n int, text string) []llm.HistoryItem {
	out := make([]llm.HistoryItem, n)
	for i := range out {
		sender := "scammer"
		if i%2 == 1 {
			sender = "user"
		}
		out[i] = llm.HistoryItem{Sender: sender, Text: text}
	}
	return out
}

func TestBuildReportShape(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := fakeClock{now: start.Add(95 * time.Second)}
	classifier := &stubClassifier{scamType: llm.CategoryUPIFraud, confidence: 0.9}
	b := NewBuilder(clock, nil, classifier)

	sess := session.Session{ID: "s1", StartTime: start}
	history := historyOf(6, "transfer to scammer@fakeupi with REF-2234")

	got := b.Build(context.Background(), sess, history, "pay now")

	if got.SessionID != "s1" || got.Status != "completed" || !got.ScamDetected {
		t.Errorf("report header wrong: %+v", got)
	}
	if got.TotalMessagesExchanged != 8 {
		t.Errorf("TotalMessagesExchanged = %d, want 8", got.TotalMessagesExchanged)
	}
	if got.EngagementDurationSeconds != 95 {
		t.Errorf("duration = %d, want actual 95s (no floor below 16 messages)", got.EngagementDurationSeconds)
	}
	if got.ScamType != llm.CategoryUPIFraud || got.ConfidenceLevel != 0.9 {
		t.Errorf("classification = (%q, %v)", got.ScamType, got.ConfidenceLevel)
	}
	if len(got.ExtractedIntelligence.PaymentHandles) != 1 {
		t.Errorf("extraction missing handles: %+v", got.ExtractedIntelligence)
	}
	if got.EngagementMetrics.TotalMessagesExchanged != 8 || got.EngagementMetrics.EngagementDurationSeconds != 95 {
		t.Errorf("metrics mismatch: %+v", got.EngagementMetrics)
	}
	if got.AgentNotes != "Session completed. scamType=upi_fraud." {
		t.Errorf("AgentNotes = %q", got.AgentNotes)
	}
}

func TestBuildDurationFloor(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := fakeClock{now: start.Add(40 * time.Second)}
	b := NewBuilder(clock, nil, &stubClassifier{scamType: llm.CategoryPhishing, confidence: 0.8})

	sess := session.Session{ID: "s2", StartTime: start}
	history := historyOf(14, "click the link")

	got := b.Build(context.Background(), sess, history, "login now")

	if got.TotalMessagesExchanged != 16 {
		t.Fatalf("TotalMessagesExchanged = %d, want 16", got.TotalMessagesExchanged)
	}
	if got.EngagementDurationSeconds < durationFloorBase || got.EngagementDurationSeconds >= durationFloorBase+durationFloorJitter {
		t.Errorf("floored duration = %d, want in [%d, %d)", got.EngagementDurationSeconds, durationFloorBase, durationFloorBase+durationFloorJitter)
	}
}

func TestBuildDurationFloorKeepsLongerActual(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	clock := fakeClock{now: start.Add(500 * time.Second)}
	b := NewBuilder(clock, nil, &stubClassifier{scamType: llm.CategoryPhishing, confidence: 0.8})

	got := b.Build(context.Background(), session.Session{ID: "s3", StartTime: start}, historyOf(14, "x"), "y")
	if got.EngagementDurationSeconds != 500 {
		t.Errorf("actual duration above the floor must be kept, got %d", got.EngagementDurationSeconds)
	}
}

func TestClassifierChain(t *testing.T) {
	first := &stubClassifier{err: errors.New("provider down")}
	second := &stubClassifier{scamType: llm.CategoryKYCScam, confidence: 0.7}
	b := NewBuilder(fakeClock{now: time.Now()}, nil, first, second)

	got := b.Build(context.Background(), session.Session{ID: "s4", StartTime: time.Now()}, nil, "kyc expired")

	if first.calls != 1 || second.calls != 1 {
		t.Errorf("chain calls = (%d, %d), want (1, 1)", first.calls, second.calls)
	}
	if got.ScamType != llm.CategoryKYCScam || got.ConfidenceLevel != 0.7 {
		t.Errorf("chain result = (%q, %v)", got.ScamType, got.ConfidenceLevel)
	}
}

func TestClassifierChainExhausted(t *testing.T) {
	b := NewBuilder(fakeClock{now: time.Now()}, nil,
		&stubClassifier{err: errors.New("down")},
		&stubClassifier{err: errors.New("also down")},
	)

	got := b.Build(context.Background(), session.Session{ID: "s5", StartTime: time.Now()}, nil, "hello")
	if got.ScamType != llm.CategoryUnknown || got.ConfidenceLevel != fallbackConfidence {
		t.Errorf("exhausted chain must fall back, got (%q, %v)", got.ScamType, got.ConfidenceLevel)
	}
}
