package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"quantmuse/config"
	"quantmuse/logger"
	"quantmuse/models"
)

// paths maps logical operations to quant-API endpoints.
var paths = map[Op]string{
	OpDataPool:      "/api/v1/data_pool",
	OpHistoryQuotes: "/api/v1/cmd_history_quotation",
	OpBasicData:     "/api/v1/basic_data_service",
	OpDataReport:    "/api/v1/data_report",
}

// HTTPTerminal talks to the terminal's HTTP quant API. It keeps no
// session state of its own beyond the access token; the session manager
// owns login lifecycle. The token is mutex-guarded: the session manager
// may re-login on one goroutine while other goroutines are mid-Invoke.
type HTTPTerminal struct {
	baseURL string
	client  *http.Client
	log     *logger.Log

	mu    sync.RWMutex
	token string
}

func (t *HTTPTerminal) setToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *HTTPTerminal) accessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// NewHTTPTerminal builds a terminal client with a pooled transport
// configured from the connection pool settings.
func NewHTTPTerminal(cfg *config.Config) *HTTPTerminal {
	pool := cfg.Terminal.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
	}

	return &HTTPTerminal{
		baseURL: cfg.Terminal.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Terminal.Timeout,
		},
		log: logger.GetLogger(),
	}
}

type loginResponse struct {
	ErrorCode int    `json:"errorcode"`
	ErrMsg    string `json:"errmsg"`
	Token     string `json:"access_token"`
}

// Login issues exactly one login call and returns the terminal's status
// code. The caller decides which codes count as a live session.
func (t *HTTPTerminal) Login(ctx context.Context, userID, password string) (int, error) {
	logger.IncrementLoginAttempt()

	body, err := json.Marshal(map[string]string{
		"userid":   userID,
		"password": password,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/get_access_token", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode login response: %w", err)
	}
	if lr.ErrorCode == StatusOK {
		t.setToken(lr.Token)
	}
	return lr.ErrorCode, nil
}

// Logout releases the session. Errors are returned but callers treat
// logout as best-effort.
func (t *HTTPTerminal) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/update_access_token", nil)
	if err != nil {
		return fmt.Errorf("failed to build logout request: %w", err)
	}
	req.Header.Set("access_token", t.accessToken())
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	resp.Body.Close()
	t.setToken("")
	return nil
}

// Invoke performs one physical query call. The response body is returned
// as an opaque byte variant; the server is known to answer with JSON,
// JSON-in-a-string, or legacy-encoded bytes depending on endpoint and
// account tier, so no decoding happens here.
func (t *HTTPTerminal) Invoke(ctx context.Context, op Op, params ...string) (models.RawResponse, error) {
	path, ok := paths[op]
	if !ok {
		return models.NewRawNil(), fmt.Errorf("unknown terminal operation %q", op)
	}

	body, err := json.Marshal(map[string]interface{}{"params": params})
	if err != nil {
		return models.NewRawNil(), fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return models.NewRawNil(), fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", t.accessToken())

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return models.NewRawNil(), fmt.Errorf("terminal call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewRawNil(), fmt.Errorf("failed to read response body: %w", err)
	}

	logger.LogPerformanceEntry(t.log.WithComponent("terminal"), "terminal", string(op), time.Since(start), logger.Fields{
		"status": resp.StatusCode,
		"bytes":  len(data),
	})

	return models.NewRawBytes(data), nil
}
