// Package server exposes the scoring client over HTTP, with a gRPC health
// endpoint for orchestrators.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"graphscore/internal/boundary"
	"graphscore/internal/dag"
	"graphscore/internal/logger"
	"graphscore/internal/metrics"
	"graphscore/internal/scoring"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// HealthService is the gRPC health service name of the scorer.
const HealthService = "graphscore.v1.Scorer"

// Options configures a Server.
type Options struct {
	ServiceName    string
	RequestTimeout time.Duration
}

// Server routes HTTP score requests to a boundary client.
type Server struct {
	client *boundary.Client
	opts   Options
	router *gin.Engine
	health *health.Server
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// BatchRequest is the body of POST /v1/score/batch.
type BatchRequest struct {
	Graphs []BatchEntry `json:"graphs"`
}

// BatchEntry is one graph of a batch request.
type BatchEntry struct {
	Graph     *dag.Graph `json:"graph"`
	PinnedIDs []string   `json:"pinnedIds,omitempty"`
}

// BatchResponse is the body returned for a batch request.
type BatchResponse struct {
	Results []*boundary.Response `json:"results"`
}

func New(client *boundary.Client, opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "graphscore"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		client: client,
		opts:   opts,
		router: gin.New(),
		health: health.NewServer(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(opts.ServiceName))
	s.registerRoutes()

	status := healthpb.HealthCheckResponse_SERVING
	if err := client.CheckEnvironment(); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.health.SetServingStatus("", status)

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.GetMetricsHandler()))

	v1 := s.router.Group("/v1")
	v1.POST("/score", s.handleScore)
	v1.POST("/score/batch", s.handleBatch)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RegisterGRPC attaches the health service to a gRPC server.
func (s *Server) RegisterGRPC(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

// Shutdown marks every health service as not serving.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := s.client.CheckEnvironment(); err != nil {
		status = "unsupported"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{Status: status, Version: ServiceVersion})
}

func (s *Server) handleScore(c *gin.Context) {
	var req boundary.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		id := s.client.NextRequestID()
		c.JSON(http.StatusBadRequest, boundary.Response{
			RequestID: id,
			Error:     "failed to decode request: " + err.Error(),
			Code:      scoring.CodeInputMalformed,
		})
		return
	}
	if req.RequestID == nil {
		id := s.client.NextRequestID()
		req.RequestID = &id
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	resp := s.do(ctx, &req)
	c.JSON(statusFor(resp), resp)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": scoring.CodeInputMalformed})
		return
	}

	items := make([]boundary.BatchItem, len(req.Graphs))
	for i, g := range req.Graphs {
		items[i] = boundary.BatchItem{Graph: g.Graph, PinnedIDs: g.PinnedIDs}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	results, err := s.client.ScoreBatch(ctx, items)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": scoring.CodeOf(err)})
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Results: results})
}

func (s *Server) do(ctx context.Context, req *boundary.Request) *boundary.Response {
	id := *req.RequestID
	resp, err := s.client.Do(ctx, req)
	if err == nil {
		return resp
	}

	logger.LogWarn(ctx, strconv.Itoa(id), "server", "score_failed", map[string]string{
		"error": err.Error(),
	})
	var ee *scoring.EngineError
	if errors.As(err, &ee) {
		return &boundary.Response{RequestID: id, Error: ee.Error(), Code: ee.Code}
	}
	return &boundary.Response{RequestID: id, Error: err.Error(), Code: scoring.CodeInputMalformed}
}

func statusFor(resp *boundary.Response) int {
	if !resp.Failed() {
		return http.StatusOK
	}
	switch resp.Code {
	case scoring.CodeInputMalformed:
		return http.StatusBadRequest
	case scoring.CodeNonConvergence:
		return http.StatusUnprocessableEntity
	case scoring.CodeEnvironmentUnsupported:
		return http.StatusServiceUnavailable
	case scoring.CodeWorkerTerminated:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
