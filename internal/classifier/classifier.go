// Package classifier sends mail content to the LLM provider with the
// fixed taxonomy prompt and normalizes the structured verdict it returns.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"mailtriage/internal/taxonomy"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
	"mailtriage/pkg/metrics"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// bodies are truncated before prompting to keep token spend bounded
const maxBodyChars = 3000

// UpstreamError means the LLM provider could not be reached or rejected
// the call. A malformed-but-received response is not an UpstreamError;
// that case is normalized by ParseVerdict instead.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm provider returned %d: %s", e.Status, e.Body)
}

// Client calls the Gemini generateContent endpoint behind a circuit
// breaker, the same guard used for every other outbound dependency here.
type Client struct {
	cfg        config.LLMConfig
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		cb:     circuitbreaker.NewCircuitBreaker(cbConfig),
		logger: logger,
	}
}

type promptPart struct {
	Text string `json:"text"`
}

type promptContent struct {
	Role  string       `json:"role"`
	Parts []promptPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []promptContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []promptPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Classify sends subject and body to the model and returns the
// normalized verdict. The only error it returns is UpstreamError (which
// also covers an open breaker); a response that arrived but cannot be
// parsed comes back as the fallback verdict, not an error.
func (c *Client) Classify(ctx context.Context, subject, body string) (Verdict, error) {
	if len(body) > maxBodyChars {
		cut := maxBodyChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	prompt := fmt.Sprintf("%s\n\n---\n\nPlease classify the following email:\n\nSUBJECT: %s\n\nBODY:\n%s",
		taxonomy.Prompt(), subject, body)

	req := generateRequest{
		Contents: []promptContent{
			{Role: "user", Parts: []promptPart{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 256,
		},
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.cfg.Model, c.cfg.APIKey)

	var respBody []byte
	err = c.cb.Execute(func() error {
		start := time.Now()

		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			metrics.RecordClassifierCallLatency("error", time.Since(start))
			return doErr
		}
		defer resp.Body.Close()

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			metrics.RecordClassifierCallLatency("error", time.Since(start))
			return readErr
		}

		if resp.StatusCode != http.StatusOK {
			metrics.RecordClassifierCallLatency(fmt.Sprintf("%d", resp.StatusCode), time.Since(start))
			return &UpstreamError{Status: resp.StatusCode, Body: string(raw[:min(len(raw), 500)])}
		}

		metrics.RecordClassifierCallLatency("success", time.Since(start))
		respBody = raw
		return nil
	})
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return Verdict{}, ue
		}
		// transport failure or breaker open
		return Verdict{}, &UpstreamError{Status: 0, Body: err.Error()}
	}

	// a response that arrived but cannot be read is a model problem, not
	// a provider outage: normalize it, leave the breaker alone
	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return FallbackVerdict(fmt.Sprintf("failed to decode model response: %v", err)), nil
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return FallbackVerdict("no candidates in model response"), nil
	}

	verdict := ParseVerdict(gr.Candidates[0].Content.Parts[0].Text)
	if gr.UsageMetadata != nil {
		verdict.Usage = Usage{
			InputTokens:  gr.UsageMetadata.PromptTokenCount,
			OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  gr.UsageMetadata.TotalTokenCount,
		}
	}

	c.logger.Debug("Classification verdict",
		zap.String("label", verdict.Label),
		zap.Float64("confidence", verdict.Confidence),
	)

	return verdict, nil
}
