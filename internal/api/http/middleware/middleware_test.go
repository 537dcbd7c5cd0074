package middleware

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
)

func newServer(handlers ...app.HandlerFunc) *server.Hertz {
	h := server.Default(server.WithHostPorts(":0"))
	h.Use(handlers...)
	ping := func(ctx context.Context, c *app.RequestContext) {
		c.String(200, GetRequestID(c))
	}
	h.GET("/ping", ping)
	h.OPTIONS("/ping", ping)
	return h
}

func get(h *server.Hertz, method string, headers ...ut.Header) *ut.ResponseRecorder {
	return ut.PerformRequest(h.Engine, method, "/ping", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, headers...)
}

func TestRequestID(t *testing.T) {
	m := NewMiddleware(nil)
	h := newServer(m.RequestID())

	w := get(h, "GET")
	id := w.Result().Header.Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, string(w.Result().Body()))

	w = get(h, "GET", ut.Header{Key: RequestIDHeader, Value: "abc"})
	assert.Equal(t, "abc", w.Result().Header.Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	m := NewMiddleware(nil)
	h := newServer(m.RateLimit(0.001, 1))

	assert.Equal(t, 200, get(h, "GET").Result().StatusCode())
	w := get(h, "GET")
	assert.Equal(t, 429, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "rate_limited")
}

func TestCORS(t *testing.T) {
	m := NewMiddleware(nil)
	h := newServer(m.CORS([]string{"https://app.example.com"}))

	w := get(h, "GET", ut.Header{Key: "Origin", Value: "https://app.example.com"})
	assert.Equal(t, "https://app.example.com", w.Result().Header.Get("Access-Control-Allow-Origin"))

	w = get(h, "GET", ut.Header{Key: "Origin", Value: "https://evil.example.com"})
	assert.Empty(t, w.Result().Header.Get("Access-Control-Allow-Origin"))

	w = get(h, "OPTIONS", ut.Header{Key: "Origin", Value: "https://app.example.com"})
	assert.Equal(t, 204, w.Result().StatusCode())
}
