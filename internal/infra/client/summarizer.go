// Package client holds HTTP clients for services the estimator calls out to.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// SummarizerClient calls the remote summary agent.
type SummarizerClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewSummarizerClient creates a new SummarizerClient.
func NewSummarizerClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *SummarizerClient {
	return &SummarizerClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Summarize sends the estimation and a locally built draft, and returns
// the agent's rewrite.
func (c *SummarizerClient) Summarize(ctx context.Context, req *domain.SummaryRequest) (*domain.SummaryResponse, error) {
	ctx, span := tracer.Start(ctx, "SummarizerClient.Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("summary.max_length", req.MaxLength))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(func() (any, error) {
		var out domain.SummaryResponse
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/summarize", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 500:
				return fmt.Errorf("summarizer returned status %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.Permanent(fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, msg))
			}
			return json.NewDecoder(resp.Body).Decode(&out)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &out, nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "summarizer", Err: err}
	}

	resp := result.(*domain.SummaryResponse)
	if resp.Source == "" {
		resp.Source = "agent"
	}
	return resp, nil
}
