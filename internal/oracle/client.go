// Package oracle is the HTTP adapter for the external assessment scorer.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
)

const serviceName = "assessment oracle"

// Request is everything the oracle needs to score one session.
type Request struct {
	SessionID      string                       `json:"session_id"`
	Transcript     []models.Message             `json:"transcript"`
	RubricFormat   string                       `json:"rubric_format"`
	Rubric         []models.Criterion           `json:"rubric"`
	PassThreshold  float64                      `json:"pass_threshold"`
	Literature     []models.LiteratureReference `json:"literature"`
	PriorAttempts  string                       `json:"prior_attempts"`
	Memory         *models.Memory               `json:"memory"`
	PatientProfile *models.PatientProfile       `json:"patient_profile"`
}

// Response is the oracle's verdict.
type Response struct {
	OverallScore    float64                 `json:"overall_score"`
	Grade           string                  `json:"grade"`
	PassFail        string                  `json:"pass_fail"`
	PassThreshold   float64                 `json:"pass_threshold"`
	Criteria        []models.CriterionScore `json:"criteria"`
	Strengths       []string                `json:"strengths"`
	Weaknesses      []string                `json:"weaknesses"`
	Recommendations []string                `json:"recommendations"`
	Evolution       string                  `json:"evolution"`
}

// ClientInterface is the oracle surface used by the services.
type ClientInterface interface {
	Assess(ctx context.Context, req Request) (*Response, error)
	ReleaseSession(ctx context.Context, handle string) error
}

var _ ClientInterface = (*Client)(nil)

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a client for the oracle at baseURL. Every Assess call is bounded
// by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Assess scores a transcript. Timeouts, transport failures and 5xx responses
// come back as UPSTREAM_UNAVAILABLE; 400 and 422 as VALIDATION_ERROR with
// the field detail the oracle reported.
func (c *Client) Assess(ctx context.Context, in Request) (*Response, error) {
	log := logger.FromContext(ctx).WithPrefix("oracle").WithField("session_id", in.SessionID)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("encode oracle request: %w", err))
	}

	log.Debug("requesting assessment: %d messages, %d criteria", len(in.Transcript), len(in.Rubric))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assessments", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome := "error"
		if stderrors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observe("assess", outcome, start)
		log.Warn("assessment request failed after %v: %v", time.Since(start), err)
		return nil, errors.NewUpstreamUnavailableError(serviceName, err)
	}
	defer resp.Body.Close()

	log.Debug("assessment response received in %v, status=%d", time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		observe("assess", "error", start)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		log.Warn("assessment rejected: status=%d, body=%s", resp.StatusCode, truncate(raw, 512))
		return nil, statusError(resp.StatusCode, raw)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observe("assess", "error", start)
		log.Error("failed to decode assessment response: %v", err)
		return nil, errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("decode response: %w", err))
	}
	if err := out.normalize(in.PassThreshold); err != nil {
		observe("assess", "error", start)
		log.Error("oracle returned an unusable assessment: %v", err)
		return nil, errors.NewUpstreamUnavailableError(serviceName, err)
	}

	observe("assess", "ok", start)
	log.Info("assessment received: score=%.1f grade=%s result=%s", out.OverallScore, out.Grade, out.PassFail)
	return &out, nil
}

// ReleaseSession tells the oracle it may drop its remote session state.
// A 404 means it is already gone. The call is bounded by the client timeout.
func (c *Client) ReleaseSession(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	log := logger.FromContext(ctx).WithPrefix("oracle").WithField("handle", handle)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/sessions/"+url.PathEscape(handle), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome := "error"
		if stderrors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observe("release", outcome, start)
		log.Warn("release request failed after %v: %v", time.Since(start), err)
		return errors.NewUpstreamUnavailableError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		observe("release", "not_found", start)
		log.Debug("remote session already released")
		return nil
	}
	if resp.StatusCode >= 300 {
		observe("release", "error", start)
		return errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("release status %d", resp.StatusCode))
	}
	observe("release", "ok", start)
	return nil
}

func (r *Response) normalize(requestedThreshold float64) error {
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return fmt.Errorf("overall_score %.2f out of range", r.OverallScore)
	}
	if r.PassThreshold <= 0 {
		r.PassThreshold = requestedThreshold
	}
	r.PassFail = strings.ToUpper(strings.TrimSpace(r.PassFail))
	switch r.PassFail {
	case models.PassFailPass, models.PassFailFail:
	case "":
		r.PassFail = models.PassFailFail
		if r.OverallScore >= r.PassThreshold {
			r.PassFail = models.PassFailPass
		}
	default:
		return fmt.Errorf("unknown pass_fail %q", r.PassFail)
	}
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Weaknesses == nil {
		r.Weaknesses = []string{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	return nil
}

type problemDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func statusError(status int, raw []byte) error {
	if status != http.StatusBadRequest && status != http.StatusUnprocessableEntity {
		return errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("status %d: %s", status, truncate(raw, 256)))
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	_ = json.Unmarshal(raw, &body)

	var details []problemDetail
	if err := json.Unmarshal(body.Detail, &details); err == nil && len(details) > 0 {
		fields := make(map[string]string, len(details))
		for _, d := range details {
			fields[fieldName(d.Loc)] = d.Msg
		}
		return errors.NewFieldsValidationError(serviceName+" rejected the request", fields)
	}

	var msg string
	if err := json.Unmarshal(body.Detail, &msg); err != nil || msg == "" {
		msg = truncate(raw, 256)
	}
	return errors.NewFieldsValidationError(serviceName+" rejected the request: "+msg, nil)
}

// fieldName joins a location path, dropping the leading "body" segment.
func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		s := fmt.Sprint(p)
		if i == 0 && s == "body" {
			continue
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "request"
	}
	return strings.Join(parts, ".")
}

func observe(operation, outcome string, start time.Time) {
	metrics.UpstreamDuration.WithLabelValues("oracle", operation, outcome).Observe(time.Since(start).Seconds())
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
