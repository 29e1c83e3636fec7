// Package completion calls the AI completion service to fill missing
// nutrient fields. The service only contributes values for fields the record
// lacks; existing values are never overwritten.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/internal/prompts"
	"nutrition-enrichment/pkg/circuit"
	errs "nutrition-enrichment/pkg/errors"
)

// CostTracker tracks completion API usage and estimated spend.
type CostTracker struct {
	mu               sync.RWMutex
	totalTokens      int
	totalRequests    int
	estimatedCostUSD float64
	startTime        time.Time
}

func NewCostTracker() *CostTracker {
	return &CostTracker{startTime: time.Now()}
}

func (c *CostTracker) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTokens += promptTokens + completionTokens
	c.totalRequests++

	// gpt-4o-mini pricing: $0.15/1M prompt tokens, $0.60/1M completion tokens
	promptCost := float64(promptTokens) * 0.15 / 1_000_000
	completionCost := float64(completionTokens) * 0.60 / 1_000_000
	c.estimatedCostUSD += promptCost + completionCost
}

func (c *CostTracker) GetStats() (totalTokens, totalRequests int, estimatedCostUSD float64, duration time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalTokens, c.totalRequests, c.estimatedCostUSD, time.Since(c.startTime)
}

// Completer is the interface the processor depends on.
type Completer interface {
	Complete(ctx context.Context, rec models.FoodRecord) (*models.CompletedData, error)
}

// Options bound the model call.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Model:       openai.GPT4oMini,
		Temperature: 0.1,
		MaxTokens:   400,
		Timeout:     constants.CompletionAPITimeoutDefault,
	}
}

// Client calls the completion service through a circuit breaker.
type Client struct {
	client      *openai.Client
	pm          *prompts.Manager
	breaker     *circuit.Breaker
	costTracker *CostTracker
	opts        Options
}

var _ Completer = (*Client)(nil)

func NewClient(apiKey string, pm *prompts.Manager, breaker *circuit.Breaker, opts Options) *Client {
	return &Client{
		client:      openai.NewClient(apiKey),
		pm:          pm,
		breaker:     breaker,
		costTracker: NewCostTracker(),
		opts:        opts,
	}
}

// GetCostStats returns current API usage statistics.
func (c *Client) GetCostStats() (totalTokens, totalRequests int, estimatedCostUSD float64, duration time.Duration) {
	return c.costTracker.GetStats()
}

// completionResponse is the exact JSON shape the service is instructed to
// return. Absent or null fields stay nil.
type completionResponse struct {
	Calories   *float64 `json:"calories"`
	Protein    *float64 `json:"protein"`
	Carbs      *float64 `json:"carbs"`
	Fat        *float64 `json:"fat"`
	Fiber      *float64 `json:"fiber"`
	Sugar      *float64 `json:"sugar"`
	Sodium     *float64 `json:"sodium"`
	Calcium    *float64 `json:"calcium"`
	Iron       *float64 `json:"iron"`
	Potassium  *float64 `json:"potassium"`
	Confidence int      `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Complete asks the service to fill the record's missing nutrient fields.
// Transport and rate-limit failures surface as ExternalAPIError (transient);
// a response we cannot parse is a BizError (permanent).
func (c *Client) Complete(ctx context.Context, rec models.FoodRecord) (*models.CompletedData, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	systemPrompt, err := c.pm.Render("completion_system", nil)
	if err != nil {
		return nil, err
	}
	userPrompt, err := c.pm.Render("completion_user", promptData(rec))
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	call := func(ctx context.Context) error {
		var cerr error
		resp, cerr = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature:    c.opts.Temperature,
			MaxTokens:      c.opts.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		return cerr
	}

	if c.breaker != nil {
		err = c.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, errs.NewExternal("completion.Complete", "openai", "completion API call failed", err)
	}

	c.costTracker.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, errs.NewBiz("completion.Complete", "completion response has no choices", nil)
	}
	return ParseResponse(resp.Choices[0].Message.Content)
}

// ParseResponse decodes the service's JSON payload, tolerating markdown code
// fences. Malformed payloads are permanent failures and carry an excerpt of
// the raw response for the audit trail.
func ParseResponse(raw string) (*models.CompletedData, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var cr completionResponse
	if err := json.Unmarshal([]byte(cleaned), &cr); err != nil {
		return nil, errs.NewBiz("completion.ParseResponse",
			fmt.Sprintf("malformed completion payload: %s", Excerpt(raw, 200)), err)
	}

	confidence := cr.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	return &models.CompletedData{
		Nutrients: models.Nutrients{
			Calories:  cr.Calories,
			Protein:   cr.Protein,
			Carbs:     cr.Carbs,
			Fat:       cr.Fat,
			Fiber:     cr.Fiber,
			Sugar:     cr.Sugar,
			Sodium:    cr.Sodium,
			Calcium:   cr.Calcium,
			Iron:      cr.Iron,
			Potassium: cr.Potassium,
		},
		Confidence: confidence,
		Reasoning:  cr.Reasoning,
	}, nil
}

// Merge fills only the nil fields of base from fill. Present values in base
// always win, including explicit zeros.
func Merge(base, fill models.Nutrients) models.Nutrients {
	out := base
	pick := func(dst **float64, src *float64) {
		if *dst == nil && src != nil {
			*dst = src
		}
	}
	pick(&out.Calories, fill.Calories)
	pick(&out.Protein, fill.Protein)
	pick(&out.Carbs, fill.Carbs)
	pick(&out.Fat, fill.Fat)
	pick(&out.Fiber, fill.Fiber)
	pick(&out.Sugar, fill.Sugar)
	pick(&out.Sodium, fill.Sodium)
	pick(&out.Calcium, fill.Calcium)
	pick(&out.Iron, fill.Iron)
	pick(&out.Potassium, fill.Potassium)
	return out
}

// Excerpt truncates raw payload text for storage in the audit trail.
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func promptData(rec models.FoodRecord) map[string]any {
	n := rec.Nutrients
	return map[string]any{
		"Name":      rec.Name,
		"Brand":     strOr(rec.Brand, "unknown"),
		"Serving":   strOr(rec.ServingDescription, "100g"),
		"Source":    strOr(rec.Source, "unverified"),
		"Calories":  fieldOrMissing(n.Calories),
		"Protein":   fieldOrMissing(n.Protein),
		"Carbs":     fieldOrMissing(n.Carbs),
		"Fat":       fieldOrMissing(n.Fat),
		"Fiber":     fieldOrMissing(n.Fiber),
		"Sugar":     fieldOrMissing(n.Sugar),
		"Sodium":    fieldOrMissing(n.Sodium),
		"Calcium":   fieldOrMissing(n.Calcium),
		"Iron":      fieldOrMissing(n.Iron),
		"Potassium": fieldOrMissing(n.Potassium),
	}
}

func strOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func fieldOrMissing(v *float64) string {
	if v == nil {
		return "MISSING"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
