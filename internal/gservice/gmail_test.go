package gservice_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hal9000y/email-mcp/internal/gservice"
	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/retry"
)

var testPolicy = retry.Policy{
	MaxRetries:      1,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
	Timeout:         time.Second,
}

func newGmail(t *testing.T, h http.Handler) (*gservice.GMail, *metrics.Metrics) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := metrics.New()
	client := func(context.Context) (*http.Client, error) { return srv.Client(), nil }

	return gservice.NewGmail(client, testPolicy, m, option.WithEndpoint(srv.URL+"/")), m
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestListUnread(t *testing.T) {
	g, m := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		assert.Equal(t, gservice.UnreadInboxQuery, r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("maxResults"))

		writeJSON(t, w, map[string]any{
			"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}},
		})
	}))

	ids, err := g.ListUnread(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExternalCalls().WithLabelValues("gmail", metrics.StatusSuccess)))
}

func TestListUnreadEmpty(t *testing.T) {
	g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"resultSizeEstimate": 0})
	}))

	ids, err := g.ListUnread(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetRawMessage(t *testing.T) {
	source := "From: a@example.com\r\nSubject: hi\r\n\r\nbody??"

	cases := []struct {
		name    string
		encoded string
	}{
		{name: "padded", encoded: base64.URLEncoding.EncodeToString([]byte(source))},
		{name: "unpadded", encoded: base64.RawURLEncoding.EncodeToString([]byte(source))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/gmail/v1/users/me/messages/m1", r.URL.Path)
				assert.Equal(t, "raw", r.URL.Query().Get("format"))
				writeJSON(t, w, map[string]string{"id": "m1", "raw": tc.encoded})
			}))

			raw, err := g.GetRawMessage(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, source, string(raw))
		})
	}
}

func TestSendRaw(t *testing.T) {
	g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)

		var msg gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		raw, err := base64.URLEncoding.DecodeString(msg.Raw)
		require.NoError(t, err)
		assert.Equal(t, "raw message", string(raw))
		assert.Equal(t, "t1", msg.ThreadId)

		writeJSON(t, w, map[string]string{"id": "sent-1"})
	}))

	id, err := g.SendRaw(context.Background(), []byte("raw message"), "t1")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
}

func TestCreateDraft(t *testing.T) {
	g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/drafts", r.URL.Path)

		var d gmail.Draft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		require.NotNil(t, d.Message)
		assert.NotEmpty(t, d.Message.Raw)

		writeJSON(t, w, map[string]string{"id": "draft-1"})
	}))

	id, err := g.CreateDraft(context.Background(), []byte("draft"), "")
	require.NoError(t, err)
	assert.Equal(t, "draft-1", id)
}

func TestProfileEmail(t *testing.T) {
	g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/profile", r.URL.Path)
		writeJSON(t, w, map[string]string{"emailAddress": "me@example.com"})
	}))

	addr, err := g.ProfileEmail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", addr)
}

func TestRetries(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantCalls int32
		wantErr   bool
	}{
		{name: "transient then success", status: http.StatusServiceUnavailable, wantCalls: 2},
		{name: "not found is final", status: http.StatusNotFound, wantCalls: 1, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			g, m := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(tc.status)
					return
				}
				writeJSON(t, w, map[string]string{"emailAddress": "me@example.com"})
			}))

			_, err := g.ProfileEmail(context.Background())
			assert.Equal(t, tc.wantCalls, calls.Load())
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var gErr *googleapi.Error
			require.True(t, errors.As(err, &gErr))
			assert.Equal(t, tc.status, gErr.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ExternalCalls().WithLabelValues("gmail", metrics.StatusError)))
		})
	}
}

func TestWritesAreNotRepeated(t *testing.T) {
	cases := []struct {
		name string
		path string
		call func(g *gservice.GMail) (string, error)
	}{
		{
			name: "send",
			path: "/gmail/v1/users/me/messages/send",
			call: func(g *gservice.GMail) (string, error) {
				return g.SendRaw(context.Background(), []byte("raw"), "")
			},
		},
		{
			name: "draft",
			path: "/gmail/v1/users/me/drafts",
			call: func(g *gservice.GMail) (string, error) {
				return g.CreateDraft(context.Background(), []byte("raw"), "")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.path, r.URL.Path)
				if calls.Add(1) == 1 {
					time.Sleep(150 * time.Millisecond)
				}
				writeJSON(t, w, map[string]string{"id": "created"})
			}))
			t.Cleanup(srv.Close)

			policy := testPolicy
			policy.Timeout = 50 * time.Millisecond
			client := func(context.Context) (*http.Client, error) { return srv.Client(), nil }
			g := gservice.NewGmail(client, policy, nil, option.WithEndpoint(srv.URL+"/"))

			_, err := tc.call(g)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestWriteServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	g, _ := newGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := g.SendRaw(context.Background(), []byte("raw"), "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientFailureIsFinal(t *testing.T) {
	var calls atomic.Int32
	client := func(context.Context) (*http.Client, error) {
		calls.Add(1)
		return nil, errors.New("no token")
	}
	g := gservice.NewGmail(client, testPolicy, nil)

	_, err := g.ListUnread(context.Background(), 1)
	require.ErrorContains(t, err, "no token")
	assert.Equal(t, int32(1), calls.Load())
}
