// Package crew talks to the external multi-agent content-generation service
// over its HTTP API. A run is synchronous from the client's perspective: the
// request blocks until the crew finishes or the context expires.
package crew

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/draftsmith/internal/config"
	"github.com/kiranshivaraju/draftsmith/internal/pipeline/pipeerr"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

var (
	ErrCrewUnreachable = errors.New("crew service unreachable")
	ErrCrewTimeout     = errors.New("crew run timeout")
)

// Provider implements models.PipelineProvider against the crew HTTP API.
type Provider struct {
	cfg       config.CrewConfig
	permanent map[int]bool
	client    *http.Client
}

// NewProvider creates a crew Provider. timeout bounds a single run end to end;
// callers typically also apply their own per-attempt context deadline.
func NewProvider(cfg config.CrewConfig, timeout time.Duration) *Provider {
	permanent := make(map[int]bool, len(cfg.PermanentStatuses))
	for _, code := range cfg.PermanentStatuses {
		permanent[code] = true
	}
	return &Provider{
		cfg:       cfg,
		permanent: permanent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "crew" }

type runRequest struct {
	Topic string `json:"topic"`
}

type runResponse struct {
	ReportPath    string  `json:"report_path"`
	BlogPath      string  `json:"blog_path"`
	TokensUsed    int     `json:"tokens_used"`
	EstimatedCost float64 `json:"estimated_cost"`
	Error         string  `json:"error,omitempty"`
}

// Generate kicks off a crew run for the topic and waits for the artifacts.
// Errors come back wrapped as pipeerr.Transient or pipeerr.Permanent
// according to the configured status classification.
func (p *Provider) Generate(ctx context.Context, topic string) (models.Artifacts, error) {
	body, err := json.Marshal(runRequest{Topic: topic})
	if err != nil {
		return models.Artifacts{}, pipeerr.Permanent(fmt.Errorf("encoding run request: %w", err))
	}

	u := p.cfg.BaseURL + "/v1/runs"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.Artifacts{}, pipeerr.Permanent(fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.Artifacts{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var runResp runResponse
		msg := fmt.Sprintf("crew returned status %d", resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&runResp) == nil && runResp.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, runResp.Error)
		}
		if p.permanent[resp.StatusCode] {
			return models.Artifacts{}, pipeerr.Permanent(errors.New(msg))
		}
		return models.Artifacts{}, pipeerr.Transient(errors.New(msg))
	}

	var runResp runResponse
	if err := json.NewDecoder(resp.Body).Decode(&runResp); err != nil {
		return models.Artifacts{}, pipeerr.Transient(fmt.Errorf("decoding crew response: %w", err))
	}

	return models.Artifacts{
		ReportPath:    runResp.ReportPath,
		BlogPath:      runResp.BlogPath,
		TokensUsed:    runResp.TokensUsed,
		EstimatedCost: runResp.EstimatedCost,
	}, nil
}

// classifyTransportError maps transport-level failures. Network errors and
// timeouts are transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipeerr.Transient(fmt.Errorf("%w: %v", ErrCrewTimeout, err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeerr.Transient(fmt.Errorf("%w: %v", ErrCrewTimeout, err))
	}
	return pipeerr.Transient(fmt.Errorf("%w: %v", ErrCrewUnreachable, err))
}

var _ models.PipelineProvider = (*Provider)(nil)
