package job

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTTL is how long a job stays queryable after its last update.
const DefaultTTL = time.Hour

// ErrJobNotFound is returned by lookups on unknown or expired jobs.
var ErrJobNotFound = eris.New("job not found")

// subscriberBuffer sizes per-subscriber channels. A stage pipeline emits a
// couple of events per stage, so this comfortably covers a full run.
const subscriberBuffer = 64

type entry struct {
	job Job

	// history lets late subscribers replay the full stream.
	history []Event
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// Registry holds in-flight and recently finished jobs in memory.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*entry
	ttl  time.Duration
	log  *zap.Logger

	now func() time.Time // test hook
}

// NewRegistry creates a Registry. ttl <= 0 selects DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		jobs: make(map[string]*entry),
		ttl:  ttl,
		log:  zap.L().With(zap.String("component", "jobs")),
		now:  time.Now,
	}
}

// Create registers a new pending job with the given stages idle.
func (r *Registry) Create(stages []string) *Job {
	now := r.now().UTC()
	j := Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Stages:    make(map[string]StageStatus, len(stages)),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	for _, s := range stages {
		j.Stages[s] = StageIdle
	}

	r.mu.Lock()
	r.jobs[j.ID] = &entry{job: j, subs: make(map[int]chan Event)}
	r.mu.Unlock()

	snapshot := j
	return &snapshot
}

// Get returns a snapshot of a job.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, eris.Wrapf(ErrJobNotFound, "id %s", id)
	}
	snapshot := e.job
	return &snapshot, nil
}

// EmitStage records a stage transition and broadcasts it. Updates to unknown
// or expired jobs are dropped silently so a slow pipeline finishing after
// expiry cannot fail.
func (r *Registry) EmitStage(id, stage string, status StageStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return
	}

	now := r.now().UTC()
	e.job.Stages[stage] = status
	e.job.Status = StatusRunning
	e.job.UpdatedAt = now
	e.job.ExpiresAt = now.Add(r.ttl)

	r.broadcast(e, Event{JobID: id, Stage: stage, Status: status, Message: message, At: now})
}

// Complete marks a job finished and attaches its result. The terminal status
// is degraded when any stage warned or failed, complete otherwise.
func (r *Registry) Complete(id string, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		r.log.Error("marshal job result", zap.String("job_id", id), zap.Error(err))
		r.Fail(id, eris.Wrap(err, "marshal result"))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return
	}

	status := StatusComplete
	for _, s := range e.job.Stages {
		if s == StageWarn || s == StageFail {
			status = StatusDegraded
			break
		}
	}

	now := r.now().UTC()
	e.job.Status = status
	e.job.Result = payload
	e.job.UpdatedAt = now
	e.job.ExpiresAt = now.Add(r.ttl)

	r.broadcast(e, Event{JobID: id, Final: status, At: now})
	r.closeSubs(e)
}

// Fail marks a job failed.
func (r *Registry) Fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return
	}

	now := r.now().UTC()
	e.job.Status = StatusFailed
	e.job.Error = eris.ToString(err, false)
	e.job.UpdatedAt = now
	e.job.ExpiresAt = now.Add(r.ttl)

	r.broadcast(e, Event{JobID: id, Message: e.job.Error, Final: StatusFailed, At: now})
	r.closeSubs(e)
}

// Subscribe returns a channel that replays the job's event history and then
// delivers live events. The channel closes after the terminal event. The
// returned cancel function detaches the subscriber.
func (r *Registry) Subscribe(id string) (<-chan Event, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, nil, eris.Wrapf(ErrJobNotFound, "id %s", id)
	}

	ch := make(chan Event, subscriberBuffer+len(e.history))
	for _, ev := range e.history {
		ch <- ev
	}
	if e.closed {
		close(ch)
		return ch, func() {}, nil
	}

	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.jobs[id]; ok {
			if sub, live := cur.subs[key]; live {
				delete(cur.subs, key)
				close(sub)
			}
		}
	}
	return ch, cancel, nil
}

// Sweep drops expired jobs and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.jobs {
		if now.After(e.job.ExpiresAt) {
			if !e.closed {
				r.closeSubs(e)
			}
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debug("swept expired jobs", zap.Int("removed", removed))
	}
	return removed
}

// Run sweeps periodically until the context is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// broadcast appends to history and fans out without blocking. A subscriber
// that stopped draining loses events rather than stalling the pipeline.
func (r *Registry) broadcast(e *entry, ev Event) {
	e.history = append(e.history, ev)
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Registry) closeSubs(e *entry) {
	for key, ch := range e.subs {
		delete(e.subs, key)
		close(ch)
	}
	e.closed = true
}
