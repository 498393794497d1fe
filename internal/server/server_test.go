package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"graphscore/internal/boundary"
	"graphscore/internal/scoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEnv struct{ cpus int }

func (f fakeEnv) NumCPU() int              { return f.cpus }
func (f fakeEnv) IsolationSupported() bool { return true }

func newTestServer(cpus int) *Server {
	client := boundary.NewClient(scoring.NewEngine(scoring.Options{MaxIterations: 50}), boundary.ClientOptions{
		MaxInFlight:      2,
		RequireMulticore: true,
		Environment:      fakeEnv{cpus: cpus},
	})
	return New(client, Options{RequestTimeout: 5 * time.Second})
}

const scenarioOneBody = `{
  "requestId": 11,
  "graph": {
    "nodes": [
      {"node_id": "f", "feature_type": "cross layer transcoder", "layer": "0"},
      {"node_id": "L", "feature_type": "logit", "layer": "1", "token_prob": 0.8}
    ],
    "links": [{"source": "f", "target": "L", "weight": 2.0}]
  }
}`

const cycleGraph = `{
  "nodes": [
    {"node_id": "a", "feature_type": "cross layer transcoder", "layer": "1"},
    {"node_id": "b", "feature_type": "cross layer transcoder", "layer": "2"},
    {"node_id": "L", "feature_type": "logit", "layer": "3", "token_prob": 1.0}
  ],
  "links": [
    {"source": "a", "target": "b", "weight": 1},
    {"source": "b", "target": "a", "weight": 1},
    {"source": "b", "target": "L", "weight": 1}
  ]
}`

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleScore(t *testing.T) {
	s := newTestServer(4)

	w := post(t, s.Handler(), "/v1/score", scenarioOneBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requestId":11,"replacementScore":0,"completenessScore":1}`, w.Body.String())
}

func TestHandleScoreAssignsRequestID(t *testing.T) {
	s := newTestServer(4)
	body := strings.Replace(scenarioOneBody, `"requestId": 11,`, "", 1)

	w := post(t, s.Handler(), "/v1/score", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotZero(t, resp["requestId"])
}

func TestHandleScoreFailures(t *testing.T) {
	tests := []struct {
		name     string
		cpus     int
		body     string
		wantCode int
		wantErr  scoring.Code
	}{
		{"bad json", 4, `{"requestId": 3, "graph": [`, http.StatusBadRequest, scoring.CodeInputMalformed},
		{"missing graph", 4, `{"requestId": 4}`, http.StatusBadRequest, scoring.CodeInputMalformed},
		{"cycle", 4, `{"requestId": 5, "graph": ` + cycleGraph + `}`, http.StatusUnprocessableEntity, scoring.CodeNonConvergence},
		{"single core", 1, scenarioOneBody, http.StatusServiceUnavailable, scoring.CodeEnvironmentUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.cpus)
			w := post(t, s.Handler(), "/v1/score", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			var resp boundary.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotZero(t, resp.RequestID)
		})
	}
}

func TestHandleBatch(t *testing.T) {
	s := newTestServer(4)
	body := `{"graphs": [{"graph": ` + cycleGraph + `}, {"graph": ` + cycleGraph + `, "pinnedIds": ["a"]}]}`

	w := post(t, s.Handler(), "/v1/score/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []boundary.Response `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, scoring.CodeNonConvergence, resp.Results[0].Code)
	// pinning a alone drops b and breaks the cycle
	assert.False(t, resp.Results[1].Failed())
}

func TestHandleHealthAndMetrics(t *testing.T) {
	s := newTestServer(4)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, ServiceVersion, health.Version)

	post(t, s.Handler(), "/v1/score", scenarioOneBody)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graphscore_computation_seconds")
}

func TestGRPCHealth(t *testing.T) {
	for _, tt := range []struct {
		cpus int
		want healthpb.HealthCheckResponse_ServingStatus
	}{
		{4, healthpb.HealthCheckResponse_SERVING},
		{1, healthpb.HealthCheckResponse_NOT_SERVING},
	} {
		s := newTestServer(tt.cpus)

		lis := bufconn.Listen(1 << 20)
		g := grpc.NewServer()
		s.RegisterGRPC(g)
		go g.Serve(lis)

		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		cancel()
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.GetStatus())

		conn.Close()
		g.Stop()
	}
}
