package boundary

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"graphscore/internal/dag"
	"graphscore/internal/logger"
	"graphscore/internal/metrics"
	"graphscore/internal/scoring"
)

// Environment reports the execution capabilities of the host.
type Environment interface {
	NumCPU() int
	IsolationSupported() bool
}

type runtimeEnvironment struct{}

func (runtimeEnvironment) NumCPU() int              { return runtime.NumCPU() }
func (runtimeEnvironment) IsolationSupported() bool { return true }

// HostEnvironment describes the current process.
func HostEnvironment() Environment {
	return runtimeEnvironment{}
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// MaxInFlight bounds the number of simultaneously live workers.
	MaxInFlight int64
	// RequireMulticore rejects hosts with a single logical core.
	RequireMulticore bool
	Environment      Environment
}

// Client dispatches score requests to fresh workers, one per request.
type Client struct {
	engine *scoring.Engine
	env    Environment
	opts   ClientOptions
	sem    *semaphore.Weighted
	nextID atomic.Int64
}

func NewClient(engine *scoring.Engine, opts ClientOptions) *Client {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.Environment == nil {
		opts.Environment = HostEnvironment()
	}
	return &Client{
		engine: engine,
		env:    opts.Environment,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// CheckEnvironment verifies that isolated execution is possible.
func (c *Client) CheckEnvironment() error {
	if ee := c.checkEnvironment(); ee != nil {
		return ee
	}
	return nil
}

func (c *Client) checkEnvironment() *scoring.EngineError {
	if !c.env.IsolationSupported() {
		return scoring.NewError(scoring.CodeEnvironmentUnsupported, "isolated execution is not available")
	}
	if c.opts.RequireMulticore && c.env.NumCPU() <= 1 {
		return scoring.NewError(scoring.CodeEnvironmentUnsupported,
			"at least 2 logical cores required, found %d", c.env.NumCPU())
	}
	return nil
}

// NextRequestID returns a fresh correlation id.
func (c *Client) NextRequestID() int {
	return int(c.nextID.Add(1))
}

// Score computes both scores for g in an isolated worker. Cancelling ctx
// terminates the worker and returns a WORKER_TERMINATED error.
func (c *Client) Score(ctx context.Context, g *dag.Graph, pinnedIDs []string) (scoring.Scores, error) {
	id := c.NextRequestID()
	resp, err := c.Do(ctx, &Request{RequestID: &id, Graph: g, PinnedIDs: pinnedIDs})
	if err != nil {
		return scoring.Scores{}, err
	}
	if resp.Failed() {
		return scoring.Scores{}, resp.Err()
	}
	return resp.Scores(), nil
}

// Do runs a caller-built request. Engine failures come back as failure
// responses; the error is reserved for failures of the boundary itself.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	id := 0
	if req != nil && req.RequestID != nil {
		id = *req.RequestID
	}
	requestID := strconv.Itoa(id)

	if ee := c.checkEnvironment(); ee != nil {
		metrics.RecordError("boundary", string(ee.Code))
		logger.LogError(ctx, requestID, "boundary", "environment_unsupported", ee, nil)
		return nil, ee.WithRequestID(id)
	}

	msg, err := EncodeRequest(req)
	if err != nil {
		return nil, scoring.Wrap(scoring.CodeInputMalformed, err, "failed to encode request").WithRequestID(id)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, terminated(id, err)
	}
	defer c.sem.Release(1)

	w := SpawnWorker(c.engine)
	if err := w.Post(msg); err != nil {
		w.Terminate()
		return nil, fmt.Errorf("failed to post request %d: %w", id, err)
	}

	select {
	case out := <-w.Messages():
		resp, err := DecodeResponse(out)
		if err != nil {
			return nil, scoring.Wrap(scoring.CodeInputMalformed, err, "unreadable worker response").WithRequestID(id)
		}
		if resp.RequestID != id {
			return nil, scoring.NewError(scoring.CodeInputMalformed,
				"response correlated with request %d, expected %d", resp.RequestID, id).WithRequestID(id)
		}
		if resp.Failed() {
			metrics.RecordError("boundary", string(resp.Code))
		}
		return resp, nil
	case <-ctx.Done():
		w.Terminate()
		metrics.RecordError("boundary", string(scoring.CodeWorkerTerminated))
		logger.LogWarn(ctx, requestID, "boundary", "worker_terminated", map[string]string{
			"reason": ctx.Err().Error(),
		})
		return nil, terminated(id, ctx.Err())
	}
}

func terminated(id int, cause error) error {
	return scoring.Wrap(scoring.CodeWorkerTerminated, cause, "request abandoned").WithRequestID(id)
}

// BatchItem is one graph of a batch.
type BatchItem struct {
	Graph     *dag.Graph
	PinnedIDs []string
}

// ScoreBatch scores every item, each in its own worker, with at most
// MaxInFlight running at once. Responses are returned in input order.
// Per-item failures are reported in the responses; the returned error is
// set only when the batch could not run at all.
func (c *Client) ScoreBatch(ctx context.Context, items []BatchItem) ([]*Response, error) {
	if err := c.CheckEnvironment(); err != nil {
		return nil, err
	}

	responses := make([]*Response, len(items))
	var g errgroup.Group
	g.SetLimit(int(c.opts.MaxInFlight))
	for i, item := range items {
		id := c.NextRequestID()
		g.Go(func() error {
			resp, err := c.Do(ctx, &Request{RequestID: &id, Graph: item.Graph, PinnedIDs: item.PinnedIDs})
			if err != nil {
				r := failureResponse(id, err)
				resp = &r
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
