// Package classify provides the embedding-similarity fallback for scam-type
// classification. When the chat-model classifier is unavailable or returns
// garbage, the finished conversation is matched against seeded example
// utterances per scam category in an in-process vector store.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nightjarlabs/nightjar/pkg/httputil"
	"github.com/nightjarlabs/nightjar/pkg/llm"
)

// seedExample is one reference utterance for a scam category.
type seedExample struct {
	Text     string
	Category string
}

// SemanticClassifier matches conversations against category seed examples.
type SemanticClassifier struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// defaultThreshold is the minimum similarity for a confident category match.
const defaultThreshold = 0.45

// New creates a classifier using Ollama embeddings at baseURL.
func New(baseURL, model string) (*SemanticClassifier, error) {
	return NewWithEmbedding(newOllamaEmbeddingFunc(model, baseURL))
}

// NewWithEmbedding creates a classifier with a custom embedding function.
func NewWithEmbedding(embeddingFunc chromem.EmbeddingFunc) (*SemanticClassifier, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("scam_examples", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &SemanticClassifier{
		db:         db,
		collection: collection,
		threshold:  defaultThreshold,
	}, nil
}

// newOllamaEmbeddingFunc embeds through Ollama's /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.NewClient(30 * time.Second)
	endpoint := strings.TrimRight(baseURL, "/") + "/api/embeddings"

	return func(ctx context.Context, text string) ([]float32, error) {
		body, err := json.Marshal(map[string]string{
			"model":  model,
			"prompt": text,
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
		defer httputil.DrainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			msg, _ := httputil.ReadErrorBody(resp.Body)
			return nil, fmt.Errorf("embedding error %d: %s", resp.StatusCode, string(msg))
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		return result.Embedding, nil
	}
}

// LoadSeeds embeds the category seed examples into the vector store. Must be
// called once before Classify.
func (c *SemanticClassifier) LoadSeeds(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seeds := seedExamples()
	docs := make([]chromem.Document, len(seeds))
	for i, s := range seeds {
		docs[i] = chromem.Document{
			ID:       fmt.Sprintf("seed_%d", i),
			Content:  s.Text,
			Metadata: map[string]string{"category": s.Category},
		}
	}

	// Sequential add: local embedding servers degrade under parallel load.
	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add seeds: %w", err)
	}
	c.ready = true
	return nil
}

// SetThreshold updates the minimum match similarity.
func (c *SemanticClassifier) SetThreshold(t float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = t
}

// Ready reports whether seeds have been loaded.
func (c *SemanticClassifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Classify matches the conversation against the seeded examples. A weak best
// match (below threshold) is an error so the caller's fallback chain can take
// over.
func (c *SemanticClassifier) Classify(ctx context.Context, conversation string) (string, float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		return "", 0, fmt.Errorf("semantic classifier not seeded")
	}

	results, err := c.collection.Query(ctx, strings.ToLower(conversation), 3, nil, nil)
	if err != nil {
		return "", 0, fmt.Errorf("query: %w", err)
	}
	if len(results) == 0 {
		return "", 0, fmt.Errorf("no seed matches")
	}

	best := results[0]
	if best.Similarity < c.threshold {
		return "", 0, fmt.Errorf("weak match %.2f below threshold %.2f", best.Similarity, c.threshold)
	}

	category := best.Metadata["category"]
	if !llm.Categories[category] {
		return "", 0, fmt.Errorf("seed carries unknown category %q", category)
	}

	confidence := float64(best.Similarity)
	if confidence > 1 {
		confidence = 1
	}
	return category, confidence, nil
}

// seedExamples is the curated per-category reference set. Phrasing follows
// the openers and demands seen in real engagement transcripts.
func seedExamples() []seedExample {
	return []seedExample{
		// bank_fraud
		{"your bank account will be blocked today verify your account number immediately", llm.CategoryBankFraud},
		{"i am calling from the bank fraud department share the otp to secure your account", llm.CategoryBankFraud},
		{"suspicious transaction detected on your debit card confirm your card number and cvv", llm.CategoryBankFraud},
		{"your account has been frozen transfer the balance to this safe account", llm.CategoryBankFraud},

		// upi_fraud
		{"send one rupee to this upi id to verify your account", llm.CategoryUPIFraud},
		{"transfer the amount to merchant@okbank or your payment will fail", llm.CategoryUPIFraud},
		{"accept the collect request on your upi app to receive the refund", llm.CategoryUPIFraud},
		{"your upi has been suspended pay the reactivation fee now", llm.CategoryUPIFraud},

		// phishing
		{"click the link below to verify your account details", llm.CategoryPhishing},
		{"login to this website immediately to avoid suspension", llm.CategoryPhishing},
		{"open the secure url and enter your password to continue", llm.CategoryPhishing},
		{"your mailbox is full click here to upgrade your storage", llm.CategoryPhishing},

		// job_scam
		{"congratulations you are selected for a work from home job pay the registration fee", llm.CategoryJobScam},
		{"earn five thousand daily by liking videos send joining charges to start", llm.CategoryJobScam},
		{"your resume is shortlisted deposit the security amount to confirm the offer", llm.CategoryJobScam},

		// investment_scam
		{"invest ten thousand and get double returns in one week guaranteed", llm.CategoryInvestmentScam},
		{"join our trading group our experts guarantee daily profit", llm.CategoryInvestmentScam},
		{"limited slots in this crypto plan returns are assured transfer today", llm.CategoryInvestmentScam},

		// lottery_scam
		{"congratulations you have won twenty five lakh in the lucky draw pay the processing fee", llm.CategoryLotteryScam},
		{"your number was selected in the lottery claim the prize by sharing your bank details", llm.CategoryLotteryScam},

		// kyc_scam
		{"your kyc has expired update it through this link within 24 hours", llm.CategoryKYCScam},
		{"complete your kyc verification or your wallet will be blocked today", llm.CategoryKYCScam},
		{"i am from customer support share the code you received to finish kyc", llm.CategoryKYCScam},

		// utility_scam
		{"your electricity connection will be disconnected tonight pay the pending bill immediately", llm.CategoryUtilityScam},
		{"your gas bill is overdue pay now using this number to avoid penalty", llm.CategoryUtilityScam},
		{"recharge your connection within two hours or services will be suspended", llm.CategoryUtilityScam},
	}
}

var _ llm.Classifier = (*SemanticClassifier)(nil)
