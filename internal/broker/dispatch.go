package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// JobHandler runs one dispatched agent job. It is invoked on its own
// goroutine per job and must honour ctx cancellation.
type JobHandler func(ctx context.Context, room string)

// dispatchJob is the broker's dispatch message: one per room that gained
// its first participant under the registered pattern.
type dispatchJob struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// drainTimeout bounds the wait for in-flight handlers after shutdown.
	// Handlers get cancelled ctx and are expected to wrap up their final
	// snapshot and finalize well within this window.
	drainTimeout = 10 * time.Second
)

// Worker subscribes to the broker's agent dispatch stream and spawns the
// handler for every room that needs an agent. The dispatch rule itself is
// registered with the broker out-of-band; the worker only consumes jobs.
type Worker struct {
	broker  *Broker
	handler JobHandler
	log     *slog.Logger

	jobs sync.WaitGroup
}

// NewWorker creates a dispatch worker. log may be nil.
func NewWorker(b *Broker, handler JobHandler, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{broker: b, handler: handler, log: log}
}

// Run consumes dispatch jobs until ctx is cancelled, reconnecting with
// exponential backoff on stream failures. On shutdown it waits up to
// drainTimeout for in-flight handlers to finish their final snapshot and
// finalize, then returns ctx.Err(). A hard error is returned only when the
// broker is unconfigured.
func (w *Worker) Run(ctx context.Context) error {
	if !w.broker.Configured() {
		return ErrNotConfigured
	}

	backoff := initialBackoff
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			w.drain()
			return ctx.Err()
		}
		w.log.Warn("dispatch stream lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// drain waits for in-flight job handlers, giving up after drainTimeout so a
// stuck handler cannot wedge process shutdown.
func (w *Worker) drain() {
	done := make(chan struct{})
	go func() {
		w.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		w.log.Warn("giving up on in-flight agent jobs after drain timeout")
	}
}

// consume opens one dispatch stream and processes jobs until it fails.
func (w *Worker) consume(ctx context.Context) error {
	token, err := w.broker.mintAgentToken("")
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, w.broker.url+"/agent/dispatch?pattern="+DispatchPattern, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("broker: dial dispatch stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "worker shutting down")

	w.log.Info("dispatch stream connected", "pattern", DispatchPattern)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("broker: read dispatch stream: %w", err)
		}

		var job dispatchJob
		if err := json.Unmarshal(data, &job); err != nil {
			w.log.Warn("discarding malformed dispatch message", "error", err)
			continue
		}
		if job.Type != "dispatch" || job.Room == "" {
			continue
		}
		if _, ok := SessionIDFromRoom(job.Room); !ok {
			w.log.Warn("dispatch for non-interview room", "room", job.Room)
			continue
		}

		w.log.Info("dispatching agent", "room", job.Room)
		w.jobs.Add(1)
		go func(room string) {
			defer w.jobs.Done()
			w.handler(ctx, room)
		}(job.Room)
	}
}
