package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nightjarlabs/nightjar/pkg/archive"
	"github.com/nightjarlabs/nightjar/pkg/classify"
	"github.com/nightjarlabs/nightjar/pkg/config"
	"github.com/nightjarlabs/nightjar/pkg/engine"
	"github.com/nightjarlabs/nightjar/pkg/intel"
	"github.com/nightjarlabs/nightjar/pkg/llm"
	"github.com/nightjarlabs/nightjar/pkg/logger"
	"github.com/nightjarlabs/nightjar/pkg/report"
	"github.com/nightjarlabs/nightjar/pkg/score"
	"github.com/nightjarlabs/nightjar/pkg/session"
)

const Version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := config.NewDefaultConfig()
		if len(os.Args) > 2 {
			cfg.Port = os.Args[2]
		}
		runServe(cfg)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: nightjar scan <text>")
			os.Exit(1)
		}
		runScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("nightjar v%s\n", Version)
		fmt.Println("Conversational scam honeypot engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("nightjar v%s - conversational scam honeypot engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  nightjar serve [port]   Start the HTTP engagement API (default: 8080)")
	fmt.Println("  nightjar scan <text>    Score a message offline and print extracted intelligence")
	fmt.Println("  nightjar version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  NIGHTJAR_API_KEY          x-api-key required on engagement requests")
	fmt.Println("  NIGHTJAR_LLM_PROVIDER     Provider: groq, openrouter, ollama")
	fmt.Println("  NIGHTJAR_LLM_API_KEY      API key for cloud providers")
	fmt.Println("  NIGHTJAR_SESSION_BACKEND  Session store: memory, redis")
	fmt.Println("  NIGHTJAR_POSTGRES_DSN     Enables the Postgres report archive")
	fmt.Println("  NIGHTJAR_WEIGHTS_FILE     YAML overrides for scorer weights")
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runServe(cfg *config.Config) {
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	eng, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	app := fiber.New(fiber.Config{
		AppName: "nightjar",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	engage := engageHandler(cfg, eng, log)
	app.Post("/api/engage", engage)
	app.Post("/api/detect", engage)

	log.Info().
		Str("port", cfg.Port).
		Str("provider", string(cfg.LLMProvider)).
		Str("session_backend", string(cfg.SessionBackend)).
		Msg("nightjar listening")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// buildEngine wires the full pipeline from configuration. Optional pieces
// (semantic classifier, report archive) degrade to disabled with a log line
// rather than failing startup.
func buildEngine(cfg *config.Config, log *logger.Logger) (*engine.Engine, func(), error) {
	scorer := score.NewDefault()
	if cfg.WeightsPath != "" {
		w, err := score.LoadWeights(cfg.WeightsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load weights %s: %w", cfg.WeightsPath, err)
		}
		scorer = score.New(w)
		log.Info().Str("path", cfg.WeightsPath).Msg("scorer weights overridden")
	}

	var store session.Store
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		store = session.NewRedisStore(client, session.WithRedisTTL(cfg.SessionTTL))
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis session store enabled")
	default:
		store = session.NewMemoryStore(session.WithTTL(cfg.SessionTTL))
	}

	client := llm.NewClient(cfg)
	classifiers := []llm.Classifier{llm.NewChatClassifier(client)}

	if cfg.EnableSemantics {
		sem, err := classify.New(cfg.EmbedBaseURL, cfg.EmbedModel)
		if err != nil {
			log.Warn().Err(err).Msg("semantic classifier disabled (init failed)")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			err := sem.LoadSeeds(ctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("semantic classifier disabled (seed load failed)")
			} else {
				classifiers = append(classifiers, sem)
				log.Info().Str("model", cfg.EmbedModel).Msg("semantic classifier enabled")
			}
		}
	}

	var archiver engine.Archiver
	closeArchive := func() {}
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		arc, err := archive.New(ctx, cfg.PostgresDSN, log)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("report archive disabled (postgres unavailable)")
		} else {
			archiver = arc
			closeArchive = arc.Close
			log.Info().Msg("postgres report archive enabled")
		}
	}

	eng := engine.New(engine.Options{
		Store:     store,
		Scorer:    scorer,
		Generator: llm.NewChatGenerator(client),
		Reports:   report.NewBuilder(report.SystemClock(), log, classifiers...),
		Archiver:  archiver,
		MinDelay:  cfg.MinDelay,
		MaxDelay:  cfg.MaxDelay,
		Log:       log,
	})

	cleanup := func() {
		closeArchive()
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("session store close failed")
		}
	}
	return eng, cleanup, nil
}

func engageHandler(cfg *config.Config, eng *engine.Engine, log *logger.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		if cfg.APIKey != "" && c.Get("x-api-key") != cfg.APIKey {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status": "error",
				"error":  "invalid api key",
			})
		}

		req := parseEngageRequest(c.Body())
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		res, err := eng.HandleTurn(c.Context(), engine.TurnRequest{
			SessionID: req.SessionID,
			Sender:    req.Sender,
			Text:      req.Text,
			History:   req.History,
		})
		if err != nil {
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("turn failed")
			res = engine.TurnResult{Reply: engine.FallbackReply}
		}

		var final any
		if res.Final != nil {
			final = res.Final
		}
		return c.JSON(fiber.Map{
			"status":        "success",
			"reply":         res.Reply,
			"finalCallback": final,
			"finalOutput":   final,
		})
	}
}

// ============================================================================
// Request coercion
// ============================================================================

// engageRequest is the normalized view of an inbound engagement payload.
type engageRequest struct {
	SessionID string
	Sender    string
	Text      string
	History   []llm.HistoryItem
}

// parseEngageRequest tolerates the field variants and type sloppiness seen
// from real upstream callers: sessionId/session_id/sessionld, sender and text
// either top-level or nested under message, numbers where strings belong,
// conversationHistory or conversation_history, history entries that are not
// objects. Nothing here rejects a request.
func parseEngageRequest(body []byte) engageRequest {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return engageRequest{}
	}

	var req engageRequest
	req.SessionID = firstString(raw, "sessionId", "session_id", "sessionld")
	req.Sender = firstString(raw, "sender")
	req.Text = firstString(raw, "text")

	if msg, ok := raw["message"].(map[string]any); ok {
		if req.Sender == "" {
			req.Sender = firstString(msg, "sender")
		}
		if req.Text == "" {
			req.Text = firstString(msg, "text")
		}
	}

	items, ok := raw["conversationHistory"].([]any)
	if !ok {
		items, ok = raw["conversation_history"].([]any)
	}
	if ok {
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text := firstString(entry, "text")
			if text == "" {
				continue
			}
			req.History = append(req.History, llm.HistoryItem{
				Sender: firstString(entry, "sender"),
				Text:   text,
			})
		}
	}
	return req
}

// firstString returns the first present key coerced to a string.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// ============================================================================
// CLI Mode
// ============================================================================

// runScan scores a single message offline and prints the heuristics plus any
// extracted intelligence. No LLM or session state involved.
func runScan(text string) {
	cfg := config.NewDefaultConfig()

	scorer := score.NewDefault()
	if cfg.WeightsPath != "" {
		w, err := score.LoadWeights(cfg.WeightsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load weights: %v\n", err)
			os.Exit(1)
		}
		scorer = score.New(w)
	}

	harvested := intel.Extract(text)
	result := struct {
		Text            string             `json:"text"`
		Score           int                `json:"score"`
		PaymentTargeted bool               `json:"payment_targeted"`
		HighValueCount  int                `json:"high_value_count"`
		Intelligence    intel.Intelligence `json:"intelligence"`
	}{
		Text:            text,
		Score:           scorer.Score(text),
		PaymentTargeted: score.PaymentTargeted(text),
		HighValueCount:  intel.HighValueCount(harvested),
		Intelligence:    harvested,
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
