package boundary

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"graphscore/internal/logger"
	"graphscore/internal/metrics"
	"graphscore/internal/scoring"
)

var errAlreadyPosted = errors.New("worker accepts exactly one message")

// Worker is a single-use execution context. It owns its own copy of the
// request, decoded from the posted bytes, and emits exactly one terminal
// message. After that it exits and cannot be reused.
type Worker struct {
	engine    *scoring.Engine
	lifecycle *Lifecycle

	inbox  chan []byte
	outbox chan []byte
	posted atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// SpawnWorker starts a worker goroutine waiting for its one message.
func SpawnWorker(engine *scoring.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		engine:    engine,
		lifecycle: NewLifecycle(),
		inbox:     make(chan []byte, 1),
		outbox:    make(chan []byte, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	metrics.IncrementActiveWorkers()
	go w.run()
	return w
}

// Post delivers the request message. A second call fails.
func (w *Worker) Post(msg []byte) error {
	if !w.posted.CompareAndSwap(false, true) {
		return errAlreadyPosted
	}
	w.inbox <- msg
	return nil
}

// Messages yields the worker's terminal message.
func (w *Worker) Messages() <-chan []byte {
	return w.outbox
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return w.lifecycle.State()
}

// Terminate abandons the worker. Any message it produces afterwards is
// discarded.
func (w *Worker) Terminate() {
	if err := w.lifecycle.Transition(StateTerminated); err == nil {
		metrics.RecordWorkerOutcome(string(StateTerminated))
	}
	w.cancel()
}

func (w *Worker) run() {
	defer close(w.done)
	defer metrics.DecrementActiveWorkers()

	var msg []byte
	select {
	case <-w.ctx.Done():
		return
	case msg = <-w.inbox:
	}

	if err := w.lifecycle.Transition(StateRunning); err != nil {
		return
	}

	resp := w.handle(msg)
	final := StateSucceeded
	if resp.Failed() {
		final = StateFailed
	}
	if err := w.lifecycle.Transition(final); err != nil {
		// terminated while computing
		return
	}
	metrics.RecordWorkerOutcome(string(final))

	out, err := EncodeResponse(resp)
	if err != nil {
		out, _ = EncodeResponse(failureResponse(resp.RequestID,
			scoring.Wrap(scoring.CodeInputMalformed, err, "failed to encode response")))
	}
	w.outbox <- out
}

func (w *Worker) handle(msg []byte) (resp Response) {
	id := 0
	defer func() {
		if r := recover(); r != nil {
			err := scoring.NewError(scoring.CodeWorkerTerminated, "worker crashed: %v", r)
			logger.LogError(w.ctx, strconv.Itoa(id), "boundary", "worker_panic", err, nil)
			resp = failureResponse(id, err)
		}
	}()

	req, id, err := DecodeRequest(msg)
	if err != nil {
		return failureResponse(id, err)
	}

	requestID := strconv.Itoa(id)
	logger.LogDebug(w.ctx, requestID, "boundary", "request_received", map[string]int{
		"nodes":  len(req.Graph.Nodes),
		"links":  len(req.Graph.Links),
		"pinned": len(req.PinnedIDs),
	})

	res, err := w.engine.Compute(w.ctx, requestID, req.Graph, req.PinnedIDs)
	if err != nil {
		return failureResponse(id, err)
	}
	return successResponse(id, res.Scores)
}

