package clientserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/victorvcruz/clipsync/internal/clipboard"
	"github.com/victorvcruz/clipsync/internal/codec"
	syncTypes "github.com/victorvcruz/clipsync/internal/sync"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serverFixture struct {
	codec   *codec.Codec
	board   *clipboard.Memory
	monitor *clipboard.Monitor
	stats   *syncTypes.Stats
	server  *Server
}

func newServerFixture(t *testing.T, key []byte) *serverFixture {
	t.Helper()
	c, err := codec.New(key)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	board := clipboard.NewMemory("initial")
	monitor := clipboard.NewMonitor(board, clipboard.MonitorOptions{Logger: quietLogger()})
	monitor.Poll()
	stats := syncTypes.NewStats()
	server := NewServer(c, monitor, ServerOptions{Addr: "127.0.0.1:0", Logger: quietLogger(), Stats: stats})
	return &serverFixture{codec: c, board: board, monitor: monitor, stats: stats, server: server}
}

func (f *serverFixture) post(t *testing.T, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, syncTypes.ClipboardPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var decoded map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, decoded
}

func payloadBody(t *testing.T, data string) string {
	t.Helper()
	body, err := json.Marshal(syncTypes.ClipboardRequest{Data: data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(body)
}

func TestHandleClipboardSuccess(t *testing.T) {
	f := newServerFixture(t, make([]byte, 32))
	encrypted, err := f.codec.Encrypt("from the phone")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	rec, body := f.post(t, payloadBody(t, encrypted))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %v)", rec.Code, body)
	}
	if body["status"] != syncTypes.StatusSuccess {
		t.Errorf("status field = %q, want %q", body["status"], syncTypes.StatusSuccess)
	}
	if f.board.Content() != "from the phone" {
		t.Errorf("clipboard = %q, want %q", f.board.Content(), "from the phone")
	}
	if _, emitted := f.monitor.Poll(); emitted {
		t.Error("received content was echoed as a local change")
	}
	if f.stats.Health().Received != 1 {
		t.Errorf("received counter = %d, want 1", f.stats.Health().Received)
	}
}

func TestHandleClipboardRejects(t *testing.T) {
	otherKey := bytes.Repeat([]byte{0x42}, 32)
	wrongKeyPayload, err := codec.Encrypt("hi", otherKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty object", `{}`, http.StatusBadRequest, syncTypes.CodeMissingData},
		{"not json", `data=abc`, http.StatusBadRequest, syncTypes.CodeMissingData},
		{"wrong field", `{"text":"hello"}`, http.StatusBadRequest, syncTypes.CodeMissingData},
		{"data not a string", `{"data":42}`, http.StatusBadRequest, syncTypes.CodeMissingData},
		{"not base64", `{"data":"@@@"}`, http.StatusInternalServerError, syncTypes.CodeDecryptFailed},
		{"empty data", `{"data":""}`, http.StatusInternalServerError, syncTypes.CodeDecryptFailed},
		{"wrong key", payloadBody(t, wrongKeyPayload), http.StatusInternalServerError, syncTypes.CodeDecryptFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, make([]byte, 32))
			rec, body := f.post(t, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if body["error"] == "" {
				t.Error("error field missing")
			}
			if body["code"] != tt.code {
				t.Errorf("code = %q, want %q", body["code"], tt.code)
			}
			if tt.code == syncTypes.CodeMissingData && body["error"] != syncTypes.MissingDataMessage {
				t.Errorf("error = %q, want %q", body["error"], syncTypes.MissingDataMessage)
			}
			if f.board.Content() != "initial" {
				t.Errorf("clipboard modified to %q", f.board.Content())
			}
			if f.board.Writes() != 0 {
				t.Errorf("clipboard written %d times", f.board.Writes())
			}
			if f.stats.Health().Rejected != 1 {
				t.Errorf("rejected counter = %d, want 1", f.stats.Health().Rejected)
			}
		})
	}
}

func TestHandleClipboardWriteFailure(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	f.board.FailWrites(errors.New("display unavailable"))

	encrypted, err := f.codec.Encrypt("text")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	rec, body := f.post(t, payloadBody(t, encrypted))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body["code"] != syncTypes.CodeClipboardWriteFailed {
		t.Errorf("code = %q, want %q", body["code"], syncTypes.CodeClipboardWriteFailed)
	}
}

func TestHandleClipboardMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	req := httptest.NewRequest(http.MethodGet, syncTypes.ClipboardPath, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q, want POST", rec.Header().Get("Allow"))
	}
}

func TestHandleClipboardBodyTooLarge(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	huge := `{"data":"` + strings.Repeat("A", maxBodyBytes+1) + `"}`
	rec, body := f.post(t, huge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if body["code"] != syncTypes.CodePayloadTooLarge {
		t.Errorf("code = %q, want %q", body["code"], syncTypes.CodePayloadTooLarge)
	}
	if f.board.Writes() != 0 {
		t.Errorf("clipboard written %d times, want 0", f.board.Writes())
	}
}

func TestHandleClipboardLargeButAllowed(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	text := strings.Repeat("x", 512*1024)
	encrypted, err := f.codec.Encrypt(text)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if syncTypes.RequestSize(encrypted) > maxBodyBytes {
		t.Fatalf("fixture too large: %d bytes", syncTypes.RequestSize(encrypted))
	}
	rec, _ := f.post(t, payloadBody(t, encrypted))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.board.Content() != text {
		t.Errorf("clipboard length = %d, want %d", len(f.board.Content()), len(text))
	}
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	f.stats.IncSent()
	f.stats.IncSent()

	req := httptest.NewRequest(http.MethodGet, syncTypes.HealthPath, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health syncTypes.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Sent != 2 {
		t.Errorf("health = %+v, want status ok and sent 2", health)
	}
}

func TestServerStartStop(t *testing.T) {
	f := newServerFixture(t, make([]byte, 16))
	if err := f.server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := f.server.Addr().String()

	resp, err := http.Get("http://" + addr + syncTypes.HealthPath)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := f.server.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	client := &http.Client{Timeout: time.Second}
	if _, err := client.Get("http://" + addr + syncTypes.HealthPath); err == nil {
		t.Error("server still accepting connections after Stop")
	}
}

func TestServerStartBindFailure(t *testing.T) {
	first := newServerFixture(t, make([]byte, 16))
	if err := first.server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.server.Stop(context.Background()) //nolint:errcheck

	second := newServerFixture(t, make([]byte, 16))
	second.server.opts.Addr = first.server.Addr().String()
	if err := second.server.Start(); err == nil {
		second.server.Stop(context.Background()) //nolint:errcheck
		t.Fatal("second server bound an address already in use")
	}
}
