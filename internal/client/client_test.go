package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/ml"
)

func newTestServer(t *testing.T, loaded bool) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if loaded {
		require.NoError(t, ml.SaveArtifact(path, ml.DemoDocument(3), false))
	}
	store := ml.NewStore(path)

	h := api.NewHandler(api.Deps{
		Engine:         ml.NewEngine(store, nil, nil, ml.EngineConfig{}),
		Models:         store,
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
	}, api.Options{MaxBatchSize: 3})
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Predict(t *testing.T) {
	srv := newTestServer(t, true)
	c := New(srv.URL+"/", 5*time.Second)
	assert.Equal(t, srv.URL, c.BaseURL())

	resp, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, "CCO", resp.SMILES)
	assert.Len(t, resp.Predictions, len(ml.Properties))
	assert.False(t, resp.Predictions.IsPlaceholder())
}

func TestClient_PredictBatch(t *testing.T) {
	srv := newTestServer(t, true)
	c := New(srv.URL, 0)

	resp, err := c.PredictBatch(context.Background(), []string{"C", "XYZ123", "CC"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "XYZ123", resp.Results[1].SMILES)
	assert.True(t, resp.Results[1].Predictions.IsPlaceholder())

	_, err = c.PredictBatch(context.Background(), []string{"C", "CC", "CCC", "CCCC"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "exceeds limit")
}

func TestClient_FeaturesAndValidate(t *testing.T) {
	srv := newTestServer(t, true)
	c := New(srv.URL, 0)
	ctx := context.Background()

	f, err := c.Features(ctx, "CCO")
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.Features["carbon_count"])

	_, err = c.Features(ctx, "C1CC")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)

	v, err := c.Validate(ctx, "OCC")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "CCO", v.CanonicalSMILES)
}

func TestClient_Health(t *testing.T) {
	ctx := context.Background()

	h, err := New(newTestServer(t, true).URL, 0).Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.ModelLoaded)

	h, err = New(newTestServer(t, false).URL, 0).Health(ctx)
	require.NoError(t, err, "degraded servers still report health")
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.ModelLoaded)
}

func TestClient_ModelInfo(t *testing.T) {
	c := New(newTestServer(t, true).URL, 0)

	info, err := c.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Loaded)
	assert.Equal(t, ml.DefaultEnsembleSize, info.EnsembleSize)
}

func TestClient_PredictionsDisabled(t *testing.T) {
	c := New(newTestServer(t, true).URL, 0)

	_, err := c.Predictions(context.Background(), 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "prediction history is disabled", apiErr.Message)
}

func TestClient_Unreachable(t *testing.T) {
	srv := newTestServer(t, true)
	srv.Close()

	_, err := New(srv.URL, time.Second).Predict(context.Background(), "C")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNewStream_URL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/v1/predict/stream", false},
		{"https://example.com/", "wss://example.com/api/v1/predict/stream", false},
		{"ws://host:1", "ws://host:1/api/v1/predict/stream", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			s, err := NewStream(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.URL())
		})
	}
}

func collect(t *testing.T, s *Stream, input []string) []StreamResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requests := make(chan string)
	results := make(chan StreamResult, len(input))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, requests, results) }()

	for _, in := range input {
		requests <- in
	}
	close(requests)
	require.NoError(t, <-done)
	close(results)

	var out []StreamResult
	for r := range results {
		out = append(out, r)
	}
	return out
}

func TestStream_Run(t *testing.T) {
	srv := newTestServer(t, true)
	s, err := NewStream(srv.URL)
	require.NoError(t, err)

	out := collect(t, s, []string{"CCO", "c1ccccc1", "XYZ123"})
	require.Len(t, out, 3)
	assert.Equal(t, "CCO", out[0].SMILES)
	assert.NoError(t, out[0].Err)
	assert.Len(t, out[0].Predictions, len(ml.Properties))
	assert.True(t, out[2].Predictions.IsPlaceholder())
}

func TestStream_Reconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	// answers one request per connection, then drops it
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)

		var req api.SMILESRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.SMILES == "bad" {
			conn.WriteJSON(api.ErrorResponse{Error: "invalid message"})
			return
		}
		conn.WriteJSON(api.PredictionResponse{SMILES: req.SMILES, Predictions: ml.Placeholder()})
	}))
	defer srv.Close()

	s, err := NewStream(srv.URL)
	require.NoError(t, err)
	s.Backoff = 5 * time.Millisecond
	s.MaxBackoff = 20 * time.Millisecond

	out := collect(t, s, []string{"C", "bad", "CC"})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"C", "bad", "CC"}, []string{out[0].SMILES, out[1].SMILES, out[2].SMILES})
	assert.NoError(t, out[0].Err)
	assert.EqualError(t, out[1].Err, "invalid message")
	assert.GreaterOrEqual(t, conns.Load(), int32(3))
}

func TestStream_ContextCancel(t *testing.T) {
	s, err := NewStream("http://127.0.0.1:1")
	require.NoError(t, err)
	s.Backoff = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = s.Run(ctx, make(chan string), make(chan StreamResult))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
