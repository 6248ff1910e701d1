package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"framerand/internal/logging"
	"framerand/internal/resource"
)

// ProduceFunc synthesizes one resource of a fixed kind and returns its id.
type ProduceFunc func(ctx context.Context) (string, error)

// KindSource describes one kind at construction time: how to produce it and
// any recovered ids that should be served before new production.
type KindSource struct {
	Produce     ProduceFunc
	Preproduced []string
}

// Options sizes the queue.
type Options struct {
	// TotalLength is the aggregate number of items kept queued across all
	// kinds.
	TotalLength int
	// PerKindMinimum is a floor each kind is topped up to before global
	// balancing.
	PerKindMinimum int
	// MaxPending bounds simultaneously running production jobs.
	MaxPending int
	// MaxRetries bounds in-slot retries after the first failed attempt.
	MaxRetries int
	// ExhaustionTopUp is the burst of extra jobs enqueued for a kind whose
	// queue just ran dry.
	ExhaustionTopUp int
	// AttemptTimeout converts a stuck production attempt into a retry.
	// Zero disables the timeout.
	AttemptTimeout time.Duration
	// MaintenanceInterval is the background top-up and status period.
	MaintenanceInterval time.Duration
}

type job struct {
	done chan struct{}
	id   string
	err  error
}

func resolvedJob(id string) *job {
	j := &job{done: make(chan struct{}), id: id}
	close(j.done)
	return j
}

type kindState struct {
	name    string
	produce ProduceFunc
	jobs    []*job
	traffic int
}

// ProducerQueue keeps a standing pool of pre-produced resources per kind and
// serves them FIFO, rebalancing new production toward the kinds whose pool
// share lags their traffic share.
type ProducerQueue struct {
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	kinds        map[string]*kindState
	order        []string
	totalQueue   int
	totalTraffic int

	limiter chan struct{}
	waiting atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the queue and performs the initial fill: every kind is topped
// up to the per-kind floor, then the aggregate pool is filled to the total
// target by fair-share selection. Preproduced ids sit at the head of their
// kind's pipeline.
func New(sources map[string]KindSource, order []string, opts Options, logger *slog.Logger) *ProducerQueue {
	if opts.MaxPending < 1 {
		opts.MaxPending = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &ProducerQueue{
		opts:    opts,
		logger:  logger,
		kinds:   make(map[string]*kindState, len(sources)),
		order:   order,
		limiter: make(chan struct{}, opts.MaxPending),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, name := range order {
		source := sources[name]
		ks := &kindState{name: name, produce: source.Produce}
		for _, id := range source.Preproduced {
			ks.jobs = append(ks.jobs, resolvedJob(id))
			q.totalQueue++
		}
		q.kinds[name] = ks
	}

	q.mu.Lock()
	q.topUpLocked()
	q.mu.Unlock()
	return q
}

// Start runs the maintenance loop until ctx is cancelled or the queue is
// closed.
func (q *ProducerQueue) Start(ctx context.Context) {
	interval := q.opts.MaintenanceInterval
	if interval <= 0 {
		interval = time.Minute
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.maintain()
			case <-ctx.Done():
				return
			case <-q.ctx.Done():
				return
			}
		}
	}()
}

// Close stops background work and waits for in-flight jobs to finish.
func (q *ProducerQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

// Next pops the oldest item for the requested kind, blocking until it is
// produced. The pop itself triggers rebalancing: one fair-share job when the
// aggregate pool is under target, and a burst top-up when this kind's queue
// just ran dry.
func (q *ProducerQueue) Next(ctx context.Context, kind string) (string, error) {
	q.mu.Lock()
	ks, ok := q.kinds[kind]
	if !ok {
		q.mu.Unlock()
		return "", resource.ErrUnknownKind
	}
	ks.traffic++
	q.totalTraffic++

	if q.totalQueue < q.opts.TotalLength {
		q.enqueueLocked(q.decideKindLocked())
	}
	if len(ks.jobs) == 0 {
		q.enqueueLocked(kind)
	}

	j := ks.jobs[0]
	ks.jobs = ks.jobs[1:]
	q.totalQueue--

	if len(ks.jobs) == 0 {
		for i := 0; i < q.opts.ExhaustionTopUp; i++ {
			q.enqueueLocked(kind)
		}
	}
	q.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return j.id, j.err
}

// decideKindLocked picks the kind whose queue share most lags its traffic
// share. Ties keep registration order.
func (q *ProducerQueue) decideKindLocked() string {
	best := q.order[0]
	bestScore := 1.0
	first := true
	for _, name := range q.order {
		ks := q.kinds[name]
		var queueShare, trafficShare float64
		if q.totalQueue > 0 {
			queueShare = float64(len(ks.jobs)) / float64(q.totalQueue)
		}
		if q.totalTraffic > 0 {
			trafficShare = float64(ks.traffic) / float64(q.totalTraffic)
		}
		score := queueShare - trafficShare
		if first || score < bestScore {
			best = name
			bestScore = score
			first = false
		}
	}
	return best
}

func (q *ProducerQueue) enqueueLocked(kind string) {
	ks := q.kinds[kind]
	j := &job{done: make(chan struct{})}
	ks.jobs = append(ks.jobs, j)
	q.totalQueue++

	q.wg.Add(1)
	go q.runJob(ks, j)
}

// runJob executes one production slot: acquire the concurrency limiter, then
// attempt production with a bounded in-slot retry loop. Exhausting retries
// rejects the slot; the caller awaiting it is responsible for requesting a
// replacement.
func (q *ProducerQueue) runJob(ks *kindState, j *job) {
	defer q.wg.Done()
	defer close(j.done)

	select {
	case q.limiter <- struct{}{}:
	default:
		q.waiting.Add(1)
		select {
		case q.limiter <- struct{}{}:
			q.waiting.Add(-1)
		case <-q.ctx.Done():
			q.waiting.Add(-1)
			j.err = q.ctx.Err()
			return
		}
	}
	defer func() { <-q.limiter }()

	for attempt := 0; ; attempt++ {
		attemptCtx := q.ctx
		cancel := func() {}
		if q.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(q.ctx, q.opts.AttemptTimeout)
		}
		id, err := ks.produce(attemptCtx)
		cancel()
		if err == nil {
			j.id = id
			return
		}
		if attempt >= q.opts.MaxRetries {
			q.logger.Error("production failing consistently, rejecting slot",
				logging.String("kind", ks.name),
				logging.Int("attempts", attempt+1),
				logging.Error(err),
			)
			j.err = err
			return
		}
		q.logger.Error("production failed, retrying in slot",
			logging.String("kind", ks.name),
			logging.Int("attempt", attempt+1),
			logging.Error(err),
		)
	}
}

// maintain tops up kind floors first, then the aggregate pool, and emits a
// status snapshot. A backlog on the concurrency limiter is worth a warning:
// it means production is slower than the queue is sized for.
func (q *ProducerQueue) maintain() {
	if waiting := q.waiting.Load(); waiting > 0 {
		q.logger.Warn("production jobs queueing behind concurrency limit",
			logging.Int64("waiting", waiting),
			logging.Int("active", len(q.limiter)),
		)
	}

	q.mu.Lock()
	q.topUpLocked()
	status := q.statusLocked()
	q.mu.Unlock()

	q.logger.Info("producer queue status",
		logging.Int("totalQueue", status.TotalQueue),
		logging.Int("totalTraffic", status.TotalTraffic),
		logging.Int("active", status.Active),
		logging.Int64("waiting", status.Waiting),
		logging.Any("kinds", status.Kinds),
	)
}

func (q *ProducerQueue) topUpLocked() {
	for _, name := range q.order {
		ks := q.kinds[name]
		for len(ks.jobs) < q.opts.PerKindMinimum {
			q.enqueueLocked(name)
		}
	}
	for q.totalQueue < q.opts.TotalLength {
		q.enqueueLocked(q.decideKindLocked())
	}
}

// KindStatus is one kind's queue occupancy and observed demand.
type KindStatus struct {
	Kind        string `json:"kind"`
	QueueLength int    `json:"queueLength"`
	Traffic     int    `json:"traffic"`
}

// Status is a point-in-time queue snapshot.
type Status struct {
	TotalQueue   int          `json:"totalQueue"`
	TotalTraffic int          `json:"totalTraffic"`
	Active       int          `json:"active"`
	Waiting      int64        `json:"waiting"`
	Kinds        []KindStatus `json:"kinds"`
}

// Snapshot reports current queue occupancy and traffic counters.
func (q *ProducerQueue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *ProducerQueue) statusLocked() Status {
	status := Status{
		TotalQueue:   q.totalQueue,
		TotalTraffic: q.totalTraffic,
		Active:       len(q.limiter),
		Waiting:      q.waiting.Load(),
	}
	for _, name := range q.order {
		ks := q.kinds[name]
		status.Kinds = append(status.Kinds, KindStatus{
			Kind:        name,
			QueueLength: len(ks.jobs),
			Traffic:     ks.traffic,
		})
	}
	return status
}
