package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler processes one dequeued message. Errors are logged by the
// dispatcher; there is no retry — redelivery is the webhook sender's job and
// the engine deduplicates.
type Handler func(ctx context.Context, j Job)

// laneIdle is how long an empty lane lingers before its goroutine exits.
const laneIdle = 2 * time.Minute

// laneBuffer bounds how many jobs one user can have waiting.
const laneBuffer = 32

type lane struct {
	ch   chan Job
	done chan struct{}
}

// Dispatcher drains a Queue with a single popper and routes each job into a
// per-key lane. One goroutine owns each lane, so jobs sharing a key are
// handled strictly in arrival order while distinct users proceed in parallel;
// a semaphore of `workers` slots bounds how many handlers run at once. The
// popper must stay singular: a second dequeuer could reorder two jobs for the
// same key between Dequeue and the lane send. Idle lanes expire.
type Dispatcher struct {
	q      Queue
	handle Handler
	sem    chan struct{}

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// NewDispatcher wires a dispatcher over the queue. workers caps concurrent
// handler executions across all lanes.
func NewDispatcher(q Queue, workers int, handle Handler) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		q:      q,
		handle: handle,
		sem:    make(chan struct{}, workers),
		lanes:  make(map[string]*lane),
	}
}

// Run starts the popper and blocks until ctx is cancelled and all in-flight
// work has drained.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pump(ctx)
	}()
	d.wg.Wait()
}

func (d *Dispatcher) pump(ctx context.Context) {
	for {
		j, err := d.q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || err == ErrClosed {
				return
			}
			log.Error().Err(err).Msg("queue dequeue failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		d.submit(ctx, j)
	}
}

// submit places the job on its lane, creating the lane on first use. A lane
// may expire between lookup and send; the loop retries against a fresh one.
func (d *Dispatcher) submit(ctx context.Context, j Job) {
	key := j.Key()
	for {
		d.mu.Lock()
		l, ok := d.lanes[key]
		if !ok {
			l = &lane{ch: make(chan Job, laneBuffer), done: make(chan struct{})}
			d.lanes[key] = l
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.runLane(ctx, key, l)
			}()
		}
		d.mu.Unlock()

		select {
		case l.ch <- j:
			return
		case <-l.done:
			// Lane expired while we held it; take a fresh one.
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) runLane(ctx context.Context, key string, l *lane) {
	idle := time.NewTimer(laneIdle)
	defer idle.Stop()
	for {
		select {
		case j := <-l.ch:
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				d.mu.Lock()
				delete(d.lanes, key)
				d.mu.Unlock()
				return
			}
			d.handle(ctx, j)
			<-d.sem
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(laneIdle)

		case <-idle.C:
			d.mu.Lock()
			if len(l.ch) == 0 {
				delete(d.lanes, key)
				close(l.done)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(laneIdle)

		case <-ctx.Done():
			d.mu.Lock()
			delete(d.lanes, key)
			d.mu.Unlock()
			return
		}
	}
}
