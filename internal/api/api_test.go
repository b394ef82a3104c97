package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	var body models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body.Status != string(models.APIStatusOK) {
		t.Errorf("unexpected health response %d %+v", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(DefaultShutdownTimeout):
		t.Fatal("server did not shut down")
	}
}

func TestRun_InvalidAddress(t *testing.T) {
	env := newTestEnv(t)
	srv, err := NewServer(env.server.analyzer, env.server.prompts, WithAddr("256.0.0.1:bad"))
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}

func TestNewServer_Options(t *testing.T) {
	env := newTestEnv(t)
	srv, err := NewServer(env.server.analyzer, env.server.prompts, WithAddr(":9999"), WithRequestTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if srv.addr != ":9999" || srv.timeout != time.Second || srv.modules != nil {
		t.Errorf("options not applied: %+v", srv)
	}
}
