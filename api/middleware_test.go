package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/log"
)

func TestLoggingMiddlewareKeepsBody(t *testing.T) {
	c := qt.New(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
	wrapped := loggingMiddleware(100)(handler)

	for _, body := range []string{
		`{"key": "value"}`,
		`[1, 2, 3]`,
		"\x00\x01\x02\x03\x04",
		"Hello, World!",
		"",
	} {
		req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
		c.Assert(rec.Body.String(), qt.Equals, body)
	}
}

func TestLoggingConfigExclusions(t *testing.T) {
	c := qt.New(t)
	config := LoggingConfig{
		MaxBodyLog:       100,
		ExcludedPrefixes: []string{"/ping", "/metrics"},
	}
	paths := map[string]bool{
		"/ping":       true,
		"/metrics/go": true,
		"/polls":      false,
	}
	previous := log.Level()
	defer log.Init(previous, "stderr", nil)

	log.Init(log.LogLevelError, "stderr", nil)
	for path := range paths {
		c.Assert(config.shouldSkipLogging(httptest.NewRequest(http.MethodGet, path, nil)), qt.IsTrue)
	}
	log.Init(log.LogLevelDebug, "stderr", nil)
	for path, skip := range paths {
		c.Assert(config.shouldSkipLogging(httptest.NewRequest(http.MethodGet, path, nil)), qt.Equals, skip)
	}
}

func TestResponseWriterCapture(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name     string
		handler  func(w http.ResponseWriter)
		expected int
	}{
		{"WriteHeader before Write", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("test"))
		}, http.StatusCreated},
		{"Write without WriteHeader", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte("test"))
		}, http.StatusOK},
		{"Multiple WriteHeader calls", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusCreated)
			w.WriteHeader(http.StatusAccepted)
		}, http.StatusCreated},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
			tt.handler(rw)
			c.Assert(rw.statusCode, qt.Equals, tt.expected)
		})
	}
}

type brokenDirectory struct{}

func (brokenDirectory) GetUser(context.Context, access.Query) (*access.User, error) {
	return nil, errors.New("connection refused")
}

func TestAuthMiddleware(t *testing.T) {
	c := qt.New(t)
	dir := access.NewMemoryDirectory(&access.User{
		ID: "alice", Role: access.RoleAdmin, TokenHash: access.HashToken("secret"),
	})
	var seen access.Actor
	handler := authMiddleware(dir)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	serve := func(h http.Handler, authorization string) int {
		seen = access.Actor{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	c.Assert(serve(handler, ""), qt.Equals, http.StatusOK)
	c.Assert(seen, qt.Equals, access.Actor{})

	c.Assert(serve(handler, "Bearer secret"), qt.Equals, http.StatusOK)
	c.Assert(seen, qt.Equals, access.Actor{ID: "alice", Role: access.RoleAdmin})

	c.Assert(serve(handler, "bearer  secret "), qt.Equals, http.StatusOK)
	c.Assert(seen.ID, qt.Equals, "alice")

	// other schemes are ignored
	c.Assert(serve(handler, "Basic secret"), qt.Equals, http.StatusOK)
	c.Assert(seen, qt.Equals, access.Actor{})

	c.Assert(serve(handler, "Bearer wrong"), qt.Equals, http.StatusUnauthorized)

	broken := authMiddleware(brokenDirectory{})(handler)
	c.Assert(serve(broken, "Bearer secret"), qt.Equals, http.StatusServiceUnavailable)
}

func TestRequestID(t *testing.T) {
	c := qt.New(t)
	var ids []string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, RequestID(r.Context()))
	}))
	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		c.Assert(rec.Header().Get(RequestIDHeader), qt.Equals, ids[len(ids)-1])
	}
	c.Assert(ids, qt.HasLen, 2)
	c.Assert(ids[0], qt.Not(qt.Equals), ids[1])
	c.Assert(RequestID(context.Background()), qt.Equals, "")
}

func TestEndpointWithParam(t *testing.T) {
	c := qt.New(t)
	c.Assert(EndpointWithParam(PollVotesEndpoint, PollURLParam, "3"), qt.Equals, "/polls/3/votes")
	c.Assert(EndpointWithParam(PollsEndpoint, "name", "a b"), qt.Equals, "/polls?name=a+b")
	c.Assert(EndpointWithParam("/polls?x=1", "y", "2"), qt.Equals, "/polls?x=1&y=2")
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := loggingMiddleware(512)(handler)
	jsonBody := `{"name": "poll", "options": ["a", "b"]}`
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/polls", strings.NewReader(jsonBody))
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}
