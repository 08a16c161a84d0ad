// Package memory talks to the continuity store that keeps cross-session
// context for a student and curriculum.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
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

const serviceName = "memory store"

type ClientInterface interface {
	// Get returns nil, nil when the store has nothing for the pair yet.
	Get(ctx context.Context, studentID, curriculumID string) (*models.Memory, error)
	Push(ctx context.Context, studentID, curriculumID string, update models.MemoryUpdate) error
}

var _ ClientInterface = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) memoryURL(studentID, curriculumID string) string {
	return fmt.Sprintf("%s/v1/memory/%s/%s", c.baseURL, url.PathEscape(studentID), url.PathEscape(curriculumID))
}

func (c *Client) Get(ctx context.Context, studentID, curriculumID string) (*models.Memory, error) {
	log := logger.FromContext(ctx).WithPrefix("memory").WithFields(map[string]any{
		"student_id":    studentID,
		"curriculum_id": curriculumID,
	})
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.memoryURL(studentID, curriculumID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe("get", "error", start)
		log.Warn("memory lookup failed: %v", err)
		return nil, errors.NewUpstreamUnavailableError(serviceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observe("get", "not_found", start)
		log.Debug("no memory yet")
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		observe("get", "error", start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn("memory lookup failed: status=%d, body=%s", resp.StatusCode, string(body))
		return nil, errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out models.Memory
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observe("get", "error", start)
		return nil, errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("decode memory: %w", err))
	}
	observe("get", "ok", start)
	log.Debug("memory loaded in %v: %d prior sessions", time.Since(start), out.SessionsCount)
	return &out, nil
}

func (c *Client) Push(ctx context.Context, studentID, curriculumID string, update models.MemoryUpdate) error {
	log := logger.FromContext(ctx).WithPrefix("memory").WithField("session_id", update.SessionID)
	start := time.Now()

	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.memoryURL(studentID, curriculumID)+"/sessions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe("push", "error", start)
		return errors.NewUpstreamUnavailableError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		observe("push", "error", start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn("memory push failed: status=%d, body=%s", resp.StatusCode, string(body))
		return errors.NewUpstreamUnavailableError(serviceName, fmt.Errorf("status %d", resp.StatusCode))
	}
	observe("push", "ok", start)
	log.Debug("pushed session summary in %v", time.Since(start))
	return nil
}

func observe(operation, outcome string, start time.Time) {
	metrics.UpstreamDuration.WithLabelValues("memory", operation, outcome).Observe(time.Since(start).Seconds())
}
