package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lpdev/bitpredector/internal/retry"
)

func classifierWithServer(t *testing.T, h http.HandlerFunc) (*Classifier, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.WarnLevel)
	c := NewClassifier(ClassifierConfig{Endpoint: srv.URL, Token: "hf-token", Logger: zap.New(core)})
	c.policy = retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond}
	return c, logs
}

func respondLabels(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestClassifier_Labels(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"positive", `[[{"label":"POSITIVE","score":0.93},{"label":"NEGATIVE","score":0.07}]]`, 1},
		{"negative", `[[{"label":"POSITIVE","score":0.2},{"label":"NEGATIVE","score":0.8}]]`, -1},
		{"neutral", `[[{"label":"neutral","score":0.6},{"label":"positive","score":0.3}]]`, 0},
		{"lowercase finbert labels", `[[{"label":"negative","score":0.7},{"label":"neutral","score":0.3}]]`, -1},
		{"flat shape", `[{"label":"POSITIVE","score":0.9}]`, 1},
		{"unknown label", `[[{"label":"LABEL_7","score":0.99}]]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := classifierWithServer(t, func(w http.ResponseWriter, _ *http.Request) {
				respondLabels(w, tt.body)
			})
			assert.Equal(t, tt.want, c.Score(context.Background(), "some text"))
		})
	}
}

func TestClassifier_Request(t *testing.T) {
	c, _ := classifierWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "btc to the moon", req.Inputs)

		respondLabels(w, `[[{"label":"POSITIVE","score":1}]]`)
	})
	assert.Equal(t, 1.0, c.Score(context.Background(), "btc to the moon"))
}

func TestClassifier_BlankTextNoCall(t *testing.T) {
	var calls atomic.Int32
	c, _ := classifierWithServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		respondLabels(w, `[[{"label":"POSITIVE","score":1}]]`)
	})
	assert.Equal(t, 0.0, c.Score(context.Background(), "   "))
	assert.Zero(t, calls.Load())
}

func TestClassifier_FailuresScoreZero(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
	}{
		{"server error retried", http.StatusServiceUnavailable, `{"error":"loading"}`, 2},
		{"client error not retried", http.StatusBadRequest, `{"error":"bad input"}`, 1},
		{"malformed body", http.StatusOK, `{"oops":true}`, 2},
		{"empty result", http.StatusOK, `[]`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, logs := classifierWithServer(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			assert.Equal(t, 0.0, c.Score(context.Background(), "text"))
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, 1, logs.FilterMessage("classifier failed, scoring neutral").Len())
		})
	}
}

func TestClassifier_Unreachable(t *testing.T) {
	c := NewClassifier(ClassifierConfig{Endpoint: "http://127.0.0.1:1/unreachable"})
	c.policy = retry.Policy{MaxAttempts: 1}
	assert.Equal(t, 0.0, c.Score(context.Background(), "text"))
}

func TestTopLabel(t *testing.T) {
	assert.Equal(t, "b", topLabel([]labelScore{{"a", 0.1}, {"b", 0.7}, {"c", 0.2}}))
	assert.Empty(t, topLabel(nil))
}
