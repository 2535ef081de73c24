// File: internal/gateway/http.go
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/config"
)

// HTTPGateway talks to the remote inference session API over HTTPS. Each call
// is a single attempt; the orchestration loop owns the retry policy, so a
// flaky network shows up there as distinct Propose calls rather than hidden
// internal retries.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// wire shape of an inference response. The action arrives as a raw document
// so a structurally bad action still yields a Proposal the caller can reject
// through validation, instead of poisoning the whole response decode.
type inferenceResponse struct {
	Outcome              string          `json:"outcome"`
	Action               json.RawMessage `json:"action"`
	Reasoning            string          `json:"reasoning"`
	Confidence           float64         `json:"confidence"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New builds the gateway from the API configuration.
func New(cfg config.APIConfig, logger *zap.Logger) (*HTTPGateway, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("api key is required")
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("gateway"),
	}, nil
}

// StartSession opens a session for one task and returns its id.
func (g *HTTPGateway) StartSession(ctx context.Context, task string, taskCtx schemas.Context) (string, error) {
	req := schemas.StartSessionRequest{Task: task, Context: taskCtx}
	var resp schemas.StartSessionResponse
	if err := g.post(ctx, "/v1/quantum/sessions", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("session API returned an empty session id")
	}
	g.logger.Debug("Session started", zap.String("session_id", resp.ID))
	return resp.ID, nil
}

// Propose sends one observation and returns the service's proposal. The
// embedded action is decoded leniently: a document that does not even parse
// comes back as a zero action, which fails validation upstream and earns the
// model its one corrective retry.
func (g *HTTPGateway) Propose(ctx context.Context, sessionID string, req schemas.InferenceRequest) (schemas.Proposal, error) {
	var wire inferenceResponse
	path := fmt.Sprintf("/v1/quantum/sessions/%s/inference", sessionID)
	if err := g.post(ctx, path, req, &wire); err != nil {
		return schemas.Proposal{}, err
	}

	proposal := schemas.Proposal{
		Outcome:              schemas.ProposalOutcome(wire.Outcome),
		Reasoning:            wire.Reasoning,
		Confidence:           wire.Confidence,
		RequiresConfirmation: wire.RequiresConfirmation,
	}
	if proposal.Outcome == "" {
		proposal.Outcome = schemas.OutcomeAction
	}
	if proposal.Outcome == schemas.OutcomeCannotDetermine {
		return proposal, nil
	}

	if len(wire.Action) > 0 {
		if err := json.Unmarshal(wire.Action, &proposal.Action); err != nil {
			g.logger.Warn("Undecodable action in inference response", zap.Error(err))
		}
	}
	return proposal, nil
}

// FinishSession reports the terminal outcome of the session.
func (g *HTTPGateway) FinishSession(ctx context.Context, sessionID string, success bool, reason string) error {
	status := "finish"
	if !success {
		status = "fail"
	}
	req := schemas.FinishSessionRequest{Status: status, Reason: reason}
	path := fmt.Sprintf("/v1/quantum/sessions/%s/finish", sessionID)
	return g.post(ctx, path, req, nil)
}

// post sends a JSON request and decodes the JSON response into out (skipped
// when out is nil). Non-2xx responses become errors carrying the API's own
// message when one is present.
func (g *HTTPGateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("session API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read session API response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && (ae.Message != "" || ae.Error != "") {
			msg := ae.Message
			if msg == "" {
				msg = ae.Error
			}
			return fmt.Errorf("session API returned status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("session API returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode session API response: %w", err)
	}
	return nil
}
