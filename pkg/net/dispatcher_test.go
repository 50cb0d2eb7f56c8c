package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

func TestNewClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:      srv.URL,
		MaxRetries:   3,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
		Tokens:       StaticToken("tok"),
	})

	resp, err := client.R().Get("/ping")
	require.NoError(t, CheckResponse("test.Ping", resp, err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNewClient_PostRetryPolicy(t *testing.T) {
	tests := []struct {
		name       string
		idempotent bool
		status     int
		wantCalls  int32
	}{
		{"create is not replayed after 5xx", false, http.StatusBadGateway, 1},
		{"marked post is replayed", true, http.StatusBadGateway, 2},
		{"rate limited post is replayed", false, http.StatusTooManyRequests, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// 服务端每次都已落库，第一次仍返回错误
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(tt.status)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			client := NewClient(ClientOptions{
				BaseURL:      srv.URL,
				MaxRetries:   3,
				RetryWait:    time.Millisecond,
				RetryMaxWait: 5 * time.Millisecond,
			})
			ctx := context.Background()
			if tt.idempotent {
				ctx = Idempotent(ctx)
			}
			resp, err := client.R().SetContext(ctx).SetBody(map[string]string{"a": "b"}).Post("/orders.json")
			checked := CheckResponse("test.Post", resp, err)

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantCalls == 1 {
				assert.True(t, platform.IsRetryable(checked), "unknown outcome surfaces as transient")
			} else {
				assert.NoError(t, checked)
			}
		})
	}
}

func TestShouldRetry_NoRequest(t *testing.T) {
	assert.False(t, shouldRetry(nil, ErrNoToken))
}

func TestNewClient_CustomAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_x", r.Header.Get("X-Shopify-Access-Token"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:    srv.URL,
		Tokens:     StaticToken("shpat_x"),
		AuthHeader: "X-Shopify-Access-Token",
		AuthScheme: "-",
	})
	resp, err := client.R().Get("/")
	require.NoError(t, CheckResponse("test", resp, err))
}

func TestCheckResponse_Classification(t *testing.T) {
	tests := []struct {
		status int
		kind   platform.ErrorKind
	}{
		{http.StatusNotFound, platform.KindNotFound},
		{http.StatusUnprocessableEntity, platform.KindValidation},
		{http.StatusBadRequest, platform.KindValidation},
		{http.StatusServiceUnavailable, platform.KindTransient},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		client := NewClient(ClientOptions{BaseURL: srv.URL})
		resp, err := client.R().Get("/")
		got := CheckResponse("test", resp, err)
		srv.Close()

		if platform.KindOf(got) != tt.kind {
			t.Errorf("status %d: kind = %s, want %s", tt.status, platform.KindOf(got), tt.kind)
		}
	}
}

func TestStaticToken_Empty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
