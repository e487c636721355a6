// Package scheduler owns the timers of the recurring loops and the
// admin-triggered one-shot jobs. Every job is single-flight: triggering
// a running job is refused, and a recurring tick that catches up with a
// still-running previous tick is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/lib/translation"
)

var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrAlreadyRunning = errors.New("already running")
)

// Params carries the optional arguments of admin-triggered jobs.
type Params struct {
	StartDate string
	EndDate   string
	Symbol    string
	ChatID    int64
}

// JobFunc runs one invocation of a job. The summary is included in the
// completion message sent back to the triggering admin chat.
type JobFunc func(ctx context.Context, p Params) (summary string, err error)

// Notifier publishes a job completion message to a chat.
type Notifier func(chatID int64, jobID, body string)

// Status is the externally visible state of one job.
type Status struct {
	ID          string     `json:"id"`
	Description string     `json:"trigger_description"`
	Schedule    string     `json:"schedule,omitempty"`
	NextRun     *time.Time `json:"next_run_time,omitempty"`
	LastRun     *time.Time `json:"last_run_time,omitempty"`
	Running     bool       `json:"running"`
	LastError   string     `json:"last_error,omitempty"`
}

type entry struct {
	id          string
	schedule    string
	description string
	fn          JobFunc

	cronID  cron.EntryID
	hasCron bool

	running   bool
	lastRun   time.Time
	hasRun    bool
	lastError string
}

type Scheduler struct {
	cron   *cron.Cron
	notify Notifier

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	jobs  map[string]*entry
	order []string
}

// New builds a scheduler whose timers fire in loc.
func New(loc *time.Location) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		baseCtx: ctx,
		cancel:  cancel,
		jobs:    make(map[string]*entry),
	}
}

// SetNotifier installs the completion-message sink for admin triggers.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notify = n
}

// Register adds a job. An empty schedule registers a manual-only job
// that runs solely through Trigger.
func (s *Scheduler) Register(id, schedule, description string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return errors.Errorf("job %s already registered", id)
	}
	e := &entry{id: id, schedule: schedule, description: description, fn: fn}

	if schedule != "" {
		cronID, err := s.cron.AddFunc(schedule, func() {
			if err := s.Trigger(id, Params{}); err == ErrAlreadyRunning {
				log.Warnf("job %s still running, skipping tick", id)
			}
		})
		if err != nil {
			return errors.Wrapf(err, "could not schedule job %s", id)
		}
		e.cronID = cronID
		e.hasCron = true
	}

	s.jobs[id] = e
	s.order = append(s.order, id)
	return nil
}

// Start begins firing timers.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("scheduler started")
}

// Stop halts the timers and waits for in-flight jobs up to gracePeriod.
// Jobs observe cancellation through their context.
func (s *Scheduler) Stop(gracePeriod time.Duration) {
	<-s.cron.Stop().Done()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("scheduler stopped")
	case <-time.After(gracePeriod):
		log.Warn("scheduler stopped with jobs still in flight")
	}
}

// Trigger starts one invocation of a job. Returns ErrAlreadyRunning
// without side effects when the job is in flight.
func (s *Scheduler) Trigger(id string, p Params) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownJob
	}
	if e.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.exec(e, p)
	return nil
}

func (s *Scheduler) exec(e *entry, p Params) {
	defer s.wg.Done()

	started := time.Now()
	var (
		summary string
		err     error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
			}
		}()
		summary, err = e.fn(s.baseCtx, p)
	}()

	s.mu.Lock()
	e.running = false
	e.lastRun = started
	e.hasRun = true
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Errorf("job %s failed: %v", e.id, err)
	} else {
		log.Infof("job %s completed in %s", e.id, time.Since(started).Round(time.Millisecond))
	}

	if p.ChatID != 0 && s.notify != nil {
		s.notify(p.ChatID, e.id, completionBody(e.id, summary, err))
	}
}

func completionBody(jobID, summary string, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ <b>%s</b> %s\n%s", jobID, translation.Translate("작업 실패"), err)
	}
	body := fmt.Sprintf("✅ <b>%s</b> %s", jobID, translation.Translate("작업 완료"))
	if summary != "" {
		body += "\n" + summary
	}
	return body
}

// Statuses reports every job in registration order.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, id := range s.order {
		e := s.jobs[id]
		st := Status{
			ID:          e.id,
			Description: e.description,
			Schedule:    e.schedule,
			Running:     e.running,
			LastError:   e.lastError,
		}
		if e.hasCron {
			next := s.cron.Entry(e.cronID).Next
			if !next.IsZero() {
				st.NextRun = &next
			}
		}
		if e.hasRun {
			lastRun := e.lastRun
			st.LastRun = &lastRun
		}
		out = append(out, st)
	}
	return out
}
