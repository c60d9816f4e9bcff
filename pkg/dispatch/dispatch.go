package dispatch

import (
	"sync"
	"time"

	"github.com/cuemby/mcci/pkg/clock"
	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/metrics"
	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = time.Second

// Dispatcher serializes every call into a server.Server and sweeps expired
// subscriptions on a ticker. It is safe for concurrent use.
type Dispatcher struct {
	mu       sync.Mutex
	srv      *server.Server
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a dispatcher around srv.
func New(srv *server.Server, clk clock.Clock, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Dispatcher{
		srv:      srv,
		clock:    clk,
		interval: interval,
		logger:   log.WithComponent("dispatch"),
	}
}

// Now returns the dispatcher's clock reading as a timestamp.
func (d *Dispatcher) Now() types.Time {
	return clock.Stamp(d.clock)
}

// Request routes a subscription request for client c.
func (d *Dispatcher) Request(c types.ClientID, r types.Request) (types.Response, error) {
	timer := metrics.NewTimer()
	d.mu.Lock()
	resp, err := d.srv.ProcessRequest(c, r)
	d.mu.Unlock()
	timer.ObserveDuration(metrics.RequestDuration)

	switch {
	case err != nil:
		metrics.RequestsTotal.WithLabelValues("error").Inc()
	case resp.Accepted:
		metrics.RequestsTotal.WithLabelValues("accepted").Inc()
	default:
		metrics.RequestsTotal.WithLabelValues("rejected").Inc()
	}
	return resp, err
}

// Produce accepts a value from local provider p.
func (d *Dispatcher) Produce(p types.ClientID, prod types.Production) (types.Acceptance, error) {
	d.mu.Lock()
	ack, err := d.srv.ProcessProduction(p, prod)
	d.mu.Unlock()

	if err == nil {
		metrics.ProductionsTotal.Inc()
		metrics.DataTotal.WithLabelValues("local").Inc()
	}
	return ack, err
}

// Data routes a value that arrived from another node.
func (d *Dispatcher) Data(provider types.ClientID, data types.Data) (int, error) {
	d.mu.Lock()
	n, err := d.srv.ProcessData(provider, data)
	d.mu.Unlock()

	if err == nil {
		metrics.DataTotal.WithLabelValues("remote").Inc()
	}
	return n, err
}

// Sweep drops subscriptions that expired before now.
func (d *Dispatcher) Sweep(now types.Time) (int, error) {
	timer := metrics.NewTimer()
	d.mu.Lock()
	n, err := d.srv.EnforceTimeouts(now)
	d.mu.Unlock()
	timer.ObserveDuration(metrics.SweepDuration)

	metrics.SubscriptionsExpired.Add(float64(n))
	return n, err
}

// Stats returns a snapshot of the router state.
func (d *Dispatcher) Stats() server.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv.Stats()
}

// ClientStats returns c's subscriptions and remaining quota.
func (d *Dispatcher) ClientStats(c types.ClientID) (server.ClientStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv.ClientStats(c)
}

// Validate runs the router's bank consistency walk.
func (d *Dispatcher) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv.Validate()
}

// BankSizes implements metrics.Source.
func (d *Dispatcher) BankSizes() []metrics.BankSize {
	st := d.Stats()
	out := make([]metrics.BankSize, 0, len(st.Banks))
	for _, b := range st.Banks {
		out = append(out, metrics.BankSize{Name: b.Name, Subscriptions: b.Subscriptions, Keys: b.Keys})
	}
	return out
}

// Start begins the sweep loop. It does nothing while the loop is running.
func (d *Dispatcher) Start() {
	if d.stopCh != nil {
		return
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	ticker := d.clock.NewTicker(d.interval)
	go d.run(ticker)
	d.logger.Info().Dur("interval", d.interval).Msg("Sweeper started")
}

// Stop stops the sweep loop and waits for it to exit
func (d *Dispatcher) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
	d.stopCh = nil
	d.logger.Info().Msg("Sweeper stopped")
}

func (d *Dispatcher) run(ticker *clock.Ticker) {
	defer close(d.doneCh)
	defer ticker.Stop()

	for {
		select {
		case at := <-ticker.C:
			d.sweepAt(clock.FromTime(at))
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) sweepAt(now types.Time) {
	n, err := d.Sweep(now)
	metrics.UpdateFromError(metrics.ComponentSweeper, err)
	if err != nil {
		d.logger.Error().Err(err).Msg("Timeout sweep failed")
	}
	if n > 0 {
		d.logger.Debug().Int("expired", n).Msg("Expired subscriptions")
	}
}
