package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
)

// Task is a periodic background job. Run returns how many items it handled.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Manager runs periodic tasks until stopped.
type Manager struct {
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager for tasks. Tasks with a non-positive interval
// are kept for RunOnce but never scheduled.
func NewManager(tasks ...Task) *Manager {
	return &Manager{tasks: tasks}
}

// BillingTasks returns the billing engine's background sweeps.
func BillingTasks(ledger *billing.Ledger, reconciler *billing.Reconciler, cfg billing.Config) []Task {
	return []Task{
		{Name: "manual-expiry", Interval: cfg.ExpirySweepInterval, Run: ledger.ExpireManualSubscriptions},
		{Name: "webhook-retry", Interval: cfg.RetryInterval, Run: reconciler.RetryDeferred},
	}
}

// Start starts one worker per scheduled task.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[JobQueue Manager] Starting background tasks")

	for _, task := range m.tasks {
		if task.Interval <= 0 || task.Run == nil {
			log.Warnf("[JobQueue Manager] Task %s is not scheduled (interval %v)", task.Name, task.Interval)
			continue
		}
		m.wg.Add(1)
		go m.worker(ctx, task)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop signals every worker and waits for in-flight runs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")
	m.cancel()
	m.cancel = nil
	m.running = false
	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunOnce runs the named task immediately (admin use).
func (m *Manager) RunOnce(ctx context.Context, name string) (int, error) {
	for _, task := range m.tasks {
		if task.Name == name && task.Run != nil {
			return task.Run(ctx)
		}
	}
	return 0, fmt.Errorf("unknown task %q", name)
}

func (m *Manager) worker(ctx context.Context, task Task) {
	defer m.wg.Done()
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %v)", task.Name, task.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Infof("[JobQueue Manager] %s worker stopping", task.Name)
			return
		case <-ticker.C:
			n, err := task.Run(ctx)
			if err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue Manager] %s failed: %v", task.Name, err)
				continue
			}
			if n > 0 {
				log.Infof("[JobQueue Manager] %s handled %d items", task.Name, n)
			}
		}
	}
}
