package jobs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ScheduledTask is one registered periodic job.
type ScheduledTask struct {
	Name      string
	Interval  time.Duration
	Handler   func() error
	LastRun   time.Time
	NextRun   time.Time
	RunCount  int64
	LastError error
}

// Scheduler runs registered tasks on an in-process ticker loop. Task
// failures are logged and the task stays scheduled.
type Scheduler struct {
	tasks []*ScheduledTask
	mu    sync.RWMutex
	log   zerolog.Logger
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks: make([]*ScheduledTask, 0),
		log:   log,
		stop:  make(chan struct{}),
	}
}

// Register adds a periodic task.
func (s *Scheduler) Register(name string, interval time.Duration, handler func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, &ScheduledTask{
		Name:     name,
		Interval: interval,
		Handler:  handler,
		NextRun:  time.Now().Add(interval),
	})

	s.log.Info().Str("task", name).Dur("interval", interval).Msg("scheduled task registered")
}

// Start launches the scheduler loop in a background goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	}()
	s.log.Info().Msg("job scheduler started")
}

// Stop halts the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info().Msg("job scheduler stopped")
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.RLock()
	tasks := make([]*ScheduledTask, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.RUnlock()

	for _, task := range tasks {
		if now.Before(task.NextRun) {
			continue
		}

		s.log.Info().Str("task", task.Name).Msg("running scheduled task")

		if err := task.Handler(); err != nil {
			s.log.Error().Err(err).Str("task", task.Name).Msg("scheduled task error")
			task.LastError = err
		} else {
			task.LastError = nil
		}

		task.LastRun = now
		task.NextRun = now.Add(task.Interval)
		task.RunCount++
	}
}
