package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dpfaria/triarb/internal/logger"
)

func testClient(baseURL string) *Client {
	return New(Config{
		Token:       "test-token",
		ChatID:      "42",
		PollTimeout: time.Second,
		BaseURL:     baseURL,
	}, logger.New(io.Discard, logger.LevelError, "test"))
}

func TestSendPostsToConfiguredChat(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.Send(context.Background(), "Motor pausado."); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "42" || gotBody["text"] != "Motor pausado." {
		t.Errorf("payload = %v", gotBody)
	}
}

func TestSendReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Send = %v, want status error", err)
	}
}

func updatesPayload(updates ...string) string {
	b, _ := json.Marshal(map[string]any{"ok": true, "result": json.RawMessage("[" + strings.Join(updates, ",") + "]")})
	return string(b)
}

func TestListenDispatchesAndAdvancesOffset(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q, _ := url.ParseQuery(r.URL.RawQuery)

		mu.Lock()
		offsets = append(offsets, q.Get("offset"))
		poll := len(offsets)
		mu.Unlock()

		switch poll {
		case 1:
			// One command from the operator, one message from a stranger.
			fmt.Fprint(w, updatesPayload(
				`{"update_id":7,"message":{"text":"/status","chat":{"id":42}}}`,
				`{"update_id":8,"message":{"text":"/pausar","chat":{"id":99}}}`,
			))
		default:
			fmt.Fprint(w, updatesPayload())
		}
	}))
	defer srv.Close()

	var (
		cmdMu    sync.Mutex
		commands []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- testClient(srv.URL).Listen(ctx, func(ctx context.Context, text string) {
			cmdMu.Lock()
			commands = append(commands, text)
			cmdMu.Unlock()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		polls := len(offsets)
		mu.Unlock()
		if polls >= 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Listen = %v, want context.Canceled", err)
	}

	cmdMu.Lock()
	defer cmdMu.Unlock()
	if len(commands) != 1 || commands[0] != "/status" {
		t.Errorf("dispatched commands = %v, want only /status from chat 42", commands)
	}

	mu.Lock()
	defer mu.Unlock()
	if offsets[0] != "0" {
		t.Errorf("first poll offset = %q, want 0", offsets[0])
	}
	// Both updates were consumed even though one was dropped.
	if offsets[1] != "9" {
		t.Errorf("second poll offset = %q, want 9", offsets[1])
	}
}

func TestListenRejectsMalformedChatID(t *testing.T) {
	c := New(Config{Token: "t", ChatID: "not-a-number", BaseURL: "http://127.0.0.1:0"},
		logger.New(io.Discard, logger.LevelError, "test"))

	err := c.Listen(context.Background(), func(context.Context, string) {})
	if err == nil || !strings.Contains(err.Error(), "invalid chat id") {
		t.Errorf("Listen = %v, want invalid chat id error", err)
	}
}
