package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/providers"
)

const validReviewJSON = `{
	"codeIssues": [],
	"securityVulnerabilityIssues": [],
	"engineeringPracticesIssues": [],
	"documentationIssues": [],
	"reviewScore": 95,
	"refactoredCode": "x = 1"
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServer_New(t *testing.T) {
	srv, err := New(Config{ListenAddr: "127.0.0.1:19999", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if srv.Addr() != "127.0.0.1:19999" {
		t.Errorf("Addr() = %q, want 127.0.0.1:19999", srv.Addr())
	}
	if srv.Registry() == nil {
		t.Error("Registry() should not be nil")
	}
	if srv.Reviewer() == nil {
		t.Error("Reviewer() should not be nil")
	}
	if srv.CallStore() == nil {
		t.Error("CallStore() should not be nil")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
}

func TestServer_DefaultListenAddr(t *testing.T) {
	srv, err := New(Config{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", srv.Addr())
	}
}

// Before Start wires the services, only endpoints that opt out of init
// should answer.
func TestServer_NotInitializedResponses(t *testing.T) {
	srv, err := New(Config{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	handler := srv.Handler()

	tests := []struct {
		method, path string
		body         string
		wantStatus   int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/swagger.json", "", http.StatusOK},
		{"GET", "/status", "", http.StatusServiceUnavailable},
		{"GET", "/calls", "", http.StatusServiceUnavailable},
		{"POST", "/review", `{"code": "x = 1"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func waitForServer(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("server at %s not ready after %v", baseURL, timeout)
}

func TestServer_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	addr := "127.0.0.1:18473"
	srv, err := New(Config{ListenAddr: addr, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Register a mock provider so review requests complete end to end.
	mock := providers.NewMockClient()
	mock.ResponseText = validReviewJSON
	srv.Registry().RegisterLLM("mock", mock)
	srv.Reviewer().SetDefaultProvider("mock")

	serverCtx, serverCancel := context.WithCancel(ctx)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	baseURL := "http://" + addr
	if err := waitForServer(ctx, baseURL, 10*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() {
			t.Error("IsRunning() = false, want true")
		}
	})

	t.Run("review_end_to_end", func(t *testing.T) {
		resp, err := http.Post(baseURL+"/review", "application/json",
			strings.NewReader(`{"code": "x = 1", "target": "x.py"}`))
		if err != nil {
			t.Fatalf("POST /review failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("review status = %d, want 200\nbody: %s", resp.StatusCode, body)
		}
		var env map[string]json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if _, ok := env["response"]; !ok {
			t.Error("envelope missing response key")
		}
	})

	t.Run("call_recorded", func(t *testing.T) {
		calls := srv.CallStore().List(llmcall.QueryFilter{})
		if len(calls) != 1 {
			t.Fatalf("recorded %d calls, want 1", len(calls))
		}
		if calls[0].Target != "x.py" {
			t.Errorf("Target = %q, want x.py", calls[0].Target)
		}
	})

	t.Run("status_endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/status")
		if err != nil {
			t.Fatalf("GET /status failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("start_while_running", func(t *testing.T) {
		if err := srv.Start(context.Background()); err == nil {
			t.Error("second Start should fail while running")
		}
	})

	// Shutdown
	serverCancel()
	select {
	case err := <-serverErr:
		if err != nil {
			t.Errorf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down in time")
	}

	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
