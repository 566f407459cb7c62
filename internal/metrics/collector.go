package metrics

import (
	"sync"
	"time"

	"github.com/loykin/shellvisr/internal/probe"
)

// Target identifies one live shell for periodic resource sampling.
type Target struct {
	ID    string
	Label string
	PID   int
}

// Collector periodically samples every target the snapshot function
// reports and feeds the per-shell resource gauges. It complements the
// on-demand sampling done by describe: scrapes stay fresh even when no
// API caller has asked for stats recently.
type Collector struct {
	interval time.Duration
	snapshot func() []Target
	prober   probe.Prober

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

const DefaultCollectInterval = 30 * time.Second

// NewCollector builds a collector over snapshot. A non-positive interval
// falls back to DefaultCollectInterval.
func NewCollector(interval time.Duration, snapshot func() []Target) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		interval: interval,
		snapshot: snapshot,
		prober:   probe.New(),
		stopCh:   make(chan struct{}),
	}
}

func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collectOnce()
			}
		}
	}()
}

func (c *Collector) collectOnce() {
	for _, t := range c.snapshot() {
		if t.PID <= 0 {
			continue
		}
		SetShellResources(t.ID, t.Label, c.prober.Sample(t.PID))
	}
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
