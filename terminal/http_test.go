package terminal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"quantmuse/config"
	"quantmuse/models"
)

func testTerminal(baseURL string) *HTTPTerminal {
	return NewHTTPTerminal(&config.Config{
		Terminal: config.TerminalConfig{
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
			ConnectionPool: config.ConnectionPoolConfig{
				MaxIdleConns:    2,
				MaxConnsPerHost: 2,
				IdleConnTimeout: time.Minute,
			},
		},
	})
}

func TestLoginStoresToken(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/get_access_token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errorcode":    0,
			"errmsg":       "",
			"access_token": "tok-123",
		})
	}))
	defer srv.Close()

	term := testTerminal(srv.URL)
	code, err := term.Login(context.Background(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	if code != StatusOK {
		t.Fatalf("code = %d, want %d", code, StatusOK)
	}
	if gotBody["userid"] != "user" || gotBody["password"] != "pass" {
		t.Fatalf("login body = %v", gotBody)
	}
	if term.accessToken() != "tok-123" {
		t.Fatalf("token = %q, want tok-123", term.accessToken())
	}
}

func TestLoginKeepsTokenOnSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errorcode":    StatusAlreadyActive,
			"access_token": "should-not-replace",
		})
	}))
	defer srv.Close()

	term := testTerminal(srv.URL)
	term.setToken("existing")
	code, err := term.Login(context.Background(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	if code != StatusAlreadyActive {
		t.Fatalf("code = %d, want %d", code, StatusAlreadyActive)
	}
	if term.accessToken() != "existing" {
		t.Fatalf("token replaced on non-OK login: %q", term.accessToken())
	}
}

func TestInvokeSendsTokenAndParams(t *testing.T) {
	var gotToken string
	var gotBody struct {
		Params []string `json:"params"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/data_pool" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotToken = r.Header.Get("access_token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"errorcode":0,"data":[]}`))
	}))
	defer srv.Close()

	term := testTerminal(srv.URL)
	term.setToken("tok-123")

	raw, err := term.Invoke(context.Background(), OpDataPool, "stock", "2024-01-02", "date:2024-01-02", "fields")
	if err != nil {
		t.Fatal(err)
	}
	if gotToken != "tok-123" {
		t.Fatalf("access_token header = %q", gotToken)
	}
	if len(gotBody.Params) != 4 || gotBody.Params[0] != "stock" {
		t.Fatalf("params = %v", gotBody.Params)
	}
	if raw.Kind != models.RawBytes {
		t.Fatalf("raw kind = %v, want RawBytes", raw.Kind)
	}
	if string(raw.Bytes) != `{"errorcode":0,"data":[]}` {
		t.Fatalf("raw bytes = %q", raw.Bytes)
	}
}

func TestInvokeRejectsUnknownOp(t *testing.T) {
	term := testTerminal("http://127.0.0.1:0")
	if _, err := term.Invoke(context.Background(), Op("bogus")); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

// The session manager can re-login on one goroutine while another is
// mid-Invoke, so token reads and writes must be safe together. Run with
// the race detector enabled.
func TestConcurrentLoginAndInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/get_access_token" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"errorcode":    0,
				"access_token": "tok-123",
			})
			return
		}
		w.Write([]byte(`{"errorcode":0,"data":[]}`))
	}))
	defer srv.Close()

	term := testTerminal(srv.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := term.Login(ctx, "user", "pass"); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := term.Invoke(ctx, OpDataPool, "stock"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if term.accessToken() != "tok-123" {
		t.Fatalf("token = %q, want tok-123", term.accessToken())
	}
}

func TestLogoutClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	term := testTerminal(srv.URL)
	term.setToken("tok-123")
	if err := term.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if term.accessToken() != "" {
		t.Fatalf("token not cleared: %q", term.accessToken())
	}
}
