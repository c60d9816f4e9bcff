package metrics

import (
	"time"
)

// BankSize is one bank's occupancy.
type BankSize struct {
	Name          string
	Subscriptions int
	Keys          int
}

// Source reports bank occupancy.
type Source interface {
	BankSizes() []BankSize
}

// Collector periodically copies bank occupancy into the subscription gauges.
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect updates the gauges once.
func (c *Collector) Collect() {
	for _, b := range c.source.BankSizes() {
		Subscriptions.WithLabelValues(b.Name).Set(float64(b.Subscriptions))
		SubscriptionKeys.WithLabelValues(b.Name).Set(float64(b.Keys))
	}
}
