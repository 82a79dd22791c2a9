package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestWithRequestLogging_CapturesStatus(t *testing.T) {
	log, buf := newBufferLogger()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log, nil)

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}

	out := buf.String()
	if !strings.Contains(out, `"status":418`) {
		t.Fatalf("status missing from log line: %s", out)
	}
	if !strings.Contains(out, `"path":"/teapot"`) {
		t.Fatalf("path missing from log line: %s", out)
	}
}

func TestWithRequestLogging_DefaultStatusIs200(t *testing.T) {
	log, buf := newBufferLogger()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), log, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), `"status":200`) {
		t.Fatalf("expected implicit 200: %s", buf.String())
	}
}

// WebSocket upgrades hijack the connection; the wrapper must keep the
// optional interfaces reachable.
func TestLoggingResponseWriter_PreservesOptionalInterfaces(t *testing.T) {
	var w http.ResponseWriter = &loggingResponseWriter{ResponseWriter: httptest.NewRecorder()}

	if _, ok := w.(http.Hijacker); !ok {
		t.Fatalf("wrapper must expose http.Hijacker")
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Fatalf("wrapper must expose http.Flusher")
	}
	if _, ok := w.(http.Pusher); !ok {
		t.Fatalf("wrapper must expose http.Pusher")
	}

	// httptest.ResponseRecorder does not support hijacking, so the call must
	// surface an error rather than panic.
	if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
		t.Fatalf("expected hijack error over a recorder")
	}
}

func TestLoggingResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rec}

	if got := lrw.Unwrap(); got != rec {
		t.Fatalf("Unwrap returned a different writer")
	}
}
