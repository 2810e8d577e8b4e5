package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a periodic maintenance job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Manager runs each task on its own ticker until Stop is called.
type Manager struct {
	tasks   []Task
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager keeps only tasks with a positive interval.
func NewManager(tasks ...Task) *Manager {
	m := &Manager{}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			log.Infof("[JobQueue Manager] Task %q disabled", t.Name)
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

// Start starts one worker per task.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Infof("[JobQueue Manager] Starting %d background tasks", len(m.tasks))

	for _, t := range m.tasks {
		m.wg.Add(1)
		go m.worker(ctx, t, m.stopCh)
	}
}

// Stop signals the workers and waits for a running task to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")
	close(m.stopCh)
	m.cancel()
	m.stopCh = nil
	m.running = false

	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) worker(ctx context.Context, t Task, stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", t.Name, t.Interval)

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", t.Name)
			return
		case <-ticker.C:
			if err := runBounded(ctx, t); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", t.Name, err)
			}
		}
	}
}

// A run may not outlast its own interval.
func runBounded(ctx context.Context, t Task) error {
	runCtx, cancel := context.WithTimeout(ctx, t.Interval)
	defer cancel()
	return t.Run(runCtx)
}

// RunOnce runs the named task immediately, outside its schedule.
func (m *Manager) RunOnce(ctx context.Context, name string) error {
	for _, t := range m.tasks {
		if t.Name == name {
			return t.Run(ctx)
		}
	}
	return fmt.Errorf("unknown task %q", name)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
