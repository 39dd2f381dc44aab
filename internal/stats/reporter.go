package stats

import (
	"sync"
	"time"

	"mqtt-transport/internal/logger"
)

// Reporter periodically logs a snapshot of the collector.
type Reporter struct {
	collector *Collector
	log       *logger.Logger
	interval  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewReporter creates a reporter; nothing runs until Start.
func NewReporter(c *Collector, log *logger.Logger, interval time.Duration) *Reporter {
	return &Reporter{
		collector: c,
		log:       log,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start launches the reporting loop.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.log.Info("transport stats", "stats", r.collector.GetStats())
			}
		}
	}()
}

// Stop terminates the reporting loop.
func (r *Reporter) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
