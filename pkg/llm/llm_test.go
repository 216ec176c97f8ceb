package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nightjarlabs/nightjar/pkg/config"
	"github.com/nightjarlabs/nightjar/pkg/rubric"
)

func TestExtractJSON(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Sure! Here it is: {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.in); got != tc.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseClassification(t *testing.T) {
	testCases := []struct {
		name           string
		in             string
		wantType       string
		wantConfidence float64
		wantErr        bool
	}{
		{"clean", `{"scamType":"upi_fraud","confidenceLevel":0.9}`, "upi_fraud", 0.9, false},
		{"fenced", "```json\n{\"scamType\":\"phishing\",\"confidenceLevel\":0.8}\n```", "phishing", 0.8, false},
		{"missing confidence", `{"scamType":"bank_fraud"}`, "bank_fraud", 0.75, false},
		{"empty type defaults", `{"confidenceLevel":0.5}`, "unknown", 0.5, false},
		{"confidence above one", `{"scamType":"kyc_scam","confidenceLevel":3.2}`, "kyc_scam", 1, false},
		{"confidence below zero", `{"scamType":"kyc_scam","confidenceLevel":-0.4}`, "kyc_scam", 0, false},
		{"invalid category", `{"scamType":"romance_scam","confidenceLevel":0.9}`, "", 0, true},
		{"not json", `the conversation looks fraudulent`, "", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotConf, err := ParseClassification(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q %v", gotType, gotConf)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClassification: %v", err)
			}
			if gotType != tc.wantType || gotConf != tc.wantConfidence {
				t.Errorf("got (%q, %v), want (%q, %v)", gotType, gotConf, tc.wantType, tc.wantConfidence)
			}
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		LLMProvider: config.ProviderOllama,
		LLMBaseURL:  server.URL,
		LLMModel:    "test-model",
		LLMTimeout:  5 * time.Second,
	}
	return NewClient(cfg)
}

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGeneratorBuildsChatMessages(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionResponse("Oh no, which account is this about?")))
	})

	gen := NewChatGenerator(client)
	history := make([]HistoryItem, 0, 12)
	for i := 0; i < 10; i++ {
		sender := "scammer"
		if i%2 == 1 {
			sender = "user"
		}
		history = append(history, HistoryItem{Sender: sender, Text: "msg"})
	}

	reply, err := gen.Reply(context.Background(), GenRequest{
		IncomingText: "your account will be blocked",
		History:      history,
		Hint:         "reference/ticket number",
		Turn:         3,
		Deficits:     rubric.Deficits{Question: true},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "Oh no, which account is this about?" {
		t.Errorf("reply = %q", reply)
	}

	// system + trailing 8 history + incoming
	if len(captured.Messages) != 10 {
		t.Fatalf("message count = %d, want 10", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", captured.Messages[0].Role)
	}
	if !strings.Contains(captured.Messages[0].Content, "reference/ticket number") {
		t.Error("system prompt must carry the hint topic")
	}
	if got := captured.Messages[len(captured.Messages)-1]; got.Role != "user" || got.Content != "your account will be blocked" {
		t.Errorf("last message = %+v, want incoming user text", got)
	}
	if captured.MaxTokens != replyMaxTokens {
		t.Errorf("max_tokens = %d, want %d", captured.MaxTokens, replyMaxTokens)
	}
}

func TestGeneratorRoleMapping(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(completionResponse("ok")))
	})

	gen := NewChatGenerator(client)
	_, err := gen.Reply(context.Background(), GenRequest{
		IncomingText: "hello",
		History: []HistoryItem{
			{Sender: "Scammer", Text: "pay now"},
			{Sender: "honeypot", Text: "which account?"},
			{Sender: "scammer", Text: ""},
		},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	// system, 2 non-empty history, incoming
	if len(captured.Messages) != 4 {
		t.Fatalf("message count = %d, want 4 (empty texts skipped)", len(captured.Messages))
	}
	if captured.Messages[1].Role != "user" {
		t.Errorf("counterpart history must map to user, got %q", captured.Messages[1].Role)
	}
	if captured.Messages[2].Role != "assistant" {
		t.Errorf("decoy history must map to assistant, got %q", captured.Messages[2].Role)
	}
}

func TestChatProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, 0, 10)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("want provider error carrying status, got %v", err)
	}
}

func TestChatNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, 0, 10); err == nil {
		t.Error("empty choices must error")
	}
}

func TestChatClassifierRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionResponse("```json\n{\"scamType\":\"utility_scam\",\"confidenceLevel\":0.85}\n```")))
	})

	scamType, confidence, err := NewChatClassifier(client).Classify(context.Background(), "disconnect notice pay now")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if scamType != CategoryUtilityScam || confidence != 0.85 {
		t.Errorf("got (%q, %v)", scamType, confidence)
	}
}
