package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

const maxResponseBytes = 8 << 20

// HTTPClient calls the external triage service
type HTTPClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// HTTPClientConfig configures the live triage client
type HTTPClientConfig struct {
	Endpoint string
	Timeout  time.Duration
	// BreakerFailures consecutive failures open the circuit
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before letting a trial request through
	BreakerCooldown time.Duration
}

// NewHTTPClient creates a triage client guarded by a circuit breaker
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 10 * time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "triage",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("triage circuit breaker state changed")
		},
	})

	return &HTTPClient{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
	}
}

var _ providers.TriageProvider = (*HTTPClient)(nil)

// Name identifies the provider
func (c *HTTPClient) Name() string {
	return "live"
}

// decisionBody is one entry of the "results" object
type decisionBody struct {
	PriorityRank  *int   `json:"priority_rank"`
	SeverityScore *int   `json:"severity_score"`
	Status        string `json:"status"`
}

// errorBody is the structured error the service returns on non-2xx
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Submit posts the batch and validates the response contract
func (c *HTTPClient) Submit(ctx context.Context, items []entities.TriageBatchItem) ([]entities.TriageDecision, error) {
	if len(items) == 0 {
		return []entities.TriageDecision{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, items)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, unavailable(FailureCircuitOpen, 0, "triage service circuit is open after repeated failures", err)
		}
		return nil, err
	}

	return result.([]entities.TriageDecision), nil
}

func (c *HTTPClient) call(ctx context.Context, items []entities.TriageBatchItem) ([]entities.TriageDecision, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode triage payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, unavailable(FailureNoResponse, 0, "triage endpoint is misconfigured", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cause := "triage service did not respond"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = fmt.Sprintf("triage service timed out after %s", c.timeout)
		}
		return nil, unavailable(FailureNoResponse, 0, cause, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, unavailable(FailureNoResponse, resp.StatusCode, "triage response could not be read", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, unavailable(FailureHTTPStatus, resp.StatusCode, describeHTTPError(resp.StatusCode, raw), errors.New(resp.Status))
	}

	decisions, err := ParseResponse(ctx, raw, items)
	if err != nil {
		return nil, unavailable(FailureMalformedResponse, resp.StatusCode, "triage response violated the contract: "+apperrors.MessageOf(err), err)
	}
	return decisions, nil
}

func describeHTTPError(status int, raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		for _, msg := range []string{eb.Error, eb.Message, eb.Detail} {
			if msg != "" {
				return fmt.Sprintf("triage service returned %d: %s", status, msg)
			}
		}
	}
	return fmt.Sprintf("triage service returned %d", status)
}

// ParseResponse validates a triage response body against the submitted
// batch. Any shape error is a contract violation; decisions for ids that
// were not submitted are logged and dropped.
func ParseResponse(ctx context.Context, raw []byte, items []entities.TriageBatchItem) ([]entities.TriageDecision, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.NewContractViolationError("response body is not a JSON object")
	}

	rawResults, ok := envelope["results"]
	if !ok {
		return nil, apperrors.NewContractViolationError(`response has no "results" field`)
	}

	var results map[string]json.RawMessage
	if err := json.Unmarshal(rawResults, &results); err != nil || results == nil {
		return nil, apperrors.NewContractViolationError(`"results" is not an object keyed by request id`)
	}

	parsed := make(map[string]entities.TriageDecision, len(results))
	for id, rawDecision := range results {
		d, err := parseDecision(id, rawDecision)
		if err != nil {
			return nil, err
		}
		parsed[id] = d
	}

	logger := observability.LoggerFromContext(ctx)
	submitted := make(map[string]bool, len(items))
	decisions := make([]entities.TriageDecision, 0, len(items))
	for _, item := range items {
		submitted[item.RequestID] = true
		if d, ok := parsed[item.RequestID]; ok {
			decisions = append(decisions, d)
		} else {
			logger.Warn().Str("request_id", item.RequestID).Msg("triage response has no decision for submitted request")
		}
	}
	for id := range parsed {
		if !submitted[id] {
			logger.Warn().Str("request_id", id).Msg("triage decision for unknown request id, skipping")
		}
	}

	return decisions, nil
}

func parseDecision(id string, raw json.RawMessage) (entities.TriageDecision, error) {
	var body decisionBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return entities.TriageDecision{}, apperrors.NewContractViolationError(fmt.Sprintf("decision for %s is not an object", id))
	}
	if body.PriorityRank == nil {
		return entities.TriageDecision{}, apperrors.NewContractViolationError(fmt.Sprintf("decision for %s has no priority_rank", id))
	}
	if body.SeverityScore == nil {
		return entities.TriageDecision{}, apperrors.NewContractViolationError(fmt.Sprintf("decision for %s has no severity_score", id))
	}
	if *body.SeverityScore < entities.MinSeverityScore || *body.SeverityScore > entities.MaxSeverityScore {
		return entities.TriageDecision{}, apperrors.NewContractViolationError(
			fmt.Sprintf("decision for %s has severity_score %d outside 1-10", id, *body.SeverityScore))
	}

	var status entities.VisitRequestStatus
	switch strings.ToUpper(body.Status) {
	case "APPROVED":
		status = entities.VisitRequestStatusApproved
	case "REBOOK":
		status = entities.VisitRequestStatusRebook
	default:
		return entities.TriageDecision{}, apperrors.NewContractViolationError(
			fmt.Sprintf("decision for %s has unknown status %q", id, body.Status))
	}

	return entities.TriageDecision{
		RequestID:     id,
		PriorityRank:  *body.PriorityRank,
		SeverityScore: *body.SeverityScore,
		Status:        status,
	}, nil
}
