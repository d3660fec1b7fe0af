package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PollConfig is the input that drives a widget poller.
type PollConfig struct {
	ID          WidgetID
	Token       string
	IntervalSec float64
	Paused      bool
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Fetcher   StatusFetcher
	Clock     Clock
	Telemetry Telemetry
	Logger    *logrus.Entry
	// OnUpdate receives a copy of the status after every transition.
	OnUpdate func(WidgetStatus)
	// Context bounds every request issued by the poller.
	Context context.Context
}

// Poller owns the poll timer of one widget. At most one tick is armed at a
// time; every reschedule bumps the generation and cancels requests issued
// under the previous one, whose responses are then discarded.
type Poller struct {
	mu   sync.Mutex
	opts PollerOptions

	cfg        PollConfig
	header     string
	interval   time.Duration
	configured bool
	stopped    bool

	generation uint64
	timer      Timer
	reqCtx     context.Context
	cancel     context.CancelFunc

	status WidgetStatus
}

// NewPoller builds an idle poller. Call Configure to start polling.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	opts.Logger = normalizeLogger(opts.Logger)
	return &Poller{
		opts:   opts,
		status: WidgetStatus{State: PollIdle},
	}
}

// Configure applies cfg. The schedule is rebuilt only when the id, the
// Authorization header value, the effective interval or the paused flag
// changed.
func (p *Poller) Configure(cfg PollConfig) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	header := AuthorizationHeader(cfg.Token)
	interval := EffectiveInterval(cfg.IntervalSec)
	if p.configured &&
		p.cfg.ID.String() == cfg.ID.String() &&
		p.header == header &&
		p.interval == interval &&
		p.cfg.Paused == cfg.Paused {
		p.cfg = cfg
		p.mu.Unlock()
		return
	}
	p.cfg = cfg
	p.header = header
	p.interval = interval
	p.configured = true
	launch := p.rescheduleLocked()
	status := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(status)
	launch()
}

// UpdateSettings reconfigures token and interval, keeping id and paused flag.
func (p *Poller) UpdateSettings(token string, intervalSec float64) {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()
	cfg.Token = token
	cfg.IntervalSec = intervalSec
	p.Configure(cfg)
}

// Pause cancels the timer and keeps the last snapshot.
func (p *Poller) Pause() {
	p.setPaused(true)
}

// Resume polls immediately and restarts the interval.
func (p *Poller) Resume() {
	p.setPaused(false)
}

func (p *Poller) setPaused(paused bool) {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()
	cfg.Paused = paused
	p.Configure(cfg)
}

// Paused reports whether the poller is paused.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Paused
}

// Refresh performs an out-of-band poll without touching the schedule.
func (p *Poller) Refresh() {
	p.mu.Lock()
	if !p.configured || p.stopped {
		p.mu.Unlock()
		return
	}
	launch := p.beginPollLocked(p.generation)
	status := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(status)
	launch()
}

// Stop cancels the timer and any in-flight request. The poller cannot be reused.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.generation++
	p.cancelLocked()
	p.status.State = PollIdle
	p.status.Loading = false
	p.status.Generation = p.generation
	p.mu.Unlock()
}

// Status returns a copy of the current status.
func (p *Poller) Status() WidgetStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Generation returns the current schedule generation.
func (p *Poller) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *Poller) rescheduleLocked() func() {
	p.generation++
	p.cancelLocked()
	p.reqCtx, p.cancel = context.WithCancel(p.opts.Context)

	gen := p.generation
	p.status.ID = p.cfg.ID
	p.status.Generation = gen
	p.status.IntervalSec = int(math.Round(p.interval.Seconds()))
	p.status.Loading = false

	if p.cfg.Paused {
		p.status.State = PollPaused
		return func() {}
	}
	if p.status.State != PollError {
		p.status.State = PollPolling
	}
	launch := p.beginPollLocked(gen)
	p.timer = p.opts.Clock.AfterFunc(p.interval, p.tick(gen))
	return launch
}

func (p *Poller) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) tick(gen uint64) func() {
	return func() {
		p.mu.Lock()
		if p.stopped || gen != p.generation || p.cfg.Paused {
			p.mu.Unlock()
			return
		}
		p.timer = p.opts.Clock.AfterFunc(p.interval, p.tick(gen))
		launch := p.beginPollLocked(gen)
		status := p.snapshotLocked()
		p.mu.Unlock()

		p.notify(status)
		launch()
	}
}

// beginPollLocked prepares one request for gen and returns the func that
// issues it. A missing token fails immediately without a request.
func (p *Poller) beginPollLocked(gen uint64) func() {
	if p.header == "" {
		p.applyErrorLocked(ErrMissingToken)
		return func() {}
	}
	p.status.Loading = true
	ctx := p.reqCtx
	id := p.cfg.ID
	token := p.cfg.Token
	return func() {
		go p.run(ctx, gen, id, token)
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, id WidgetID, token string) {
	snapshot, err := p.opts.Fetcher.FetchStatus(ctx, id, token)
	p.complete(ctx, gen, id, snapshot, err)
}

func (p *Poller) complete(ctx context.Context, gen uint64, id WidgetID, snapshot StatusSnapshot, err error) {
	p.mu.Lock()
	if p.stopped || gen != p.generation {
		current := p.generation
		p.mu.Unlock()
		p.opts.Telemetry.Record(ctx, "tracker.poll.stale", map[string]any{
			"widget_id":  id.String(),
			"generation": gen,
			"current":    current,
		})
		return
	}
	p.status.Loading = false
	if err != nil {
		p.applyErrorLocked(err)
	} else {
		snap := snapshot
		p.status.Snapshot = &snap
		p.status.Message = ""
		p.status.UpdatedAt = p.opts.Clock.Now()
		if p.cfg.Paused {
			p.status.State = PollPaused
		} else {
			p.status.State = PollPolling
		}
	}
	status := p.snapshotLocked()
	p.mu.Unlock()

	if err != nil {
		p.opts.Logger.WithError(err).WithField("widget_id", status.ID.String()).Warn("poll failed")
		p.opts.Telemetry.Record(ctx, "tracker.poll.error", map[string]any{
			"widget_id": status.ID.String(),
			"error":     status.Message,
		})
	} else {
		p.opts.Logger.WithFields(logrus.Fields{
			"widget_id": status.ID.String(),
			"capacity":  snapshot.Capacity,
			"total":     snapshot.Total,
		}).Debug("poll succeeded")
		p.opts.Telemetry.Record(ctx, "tracker.poll.success", map[string]any{
			"widget_id": status.ID.String(),
		})
	}
	p.notify(status)
}

func (p *Poller) applyErrorLocked(err error) {
	p.status.Loading = false
	p.status.Message = errorMessage(err)
	if p.cfg.Paused {
		p.status.State = PollPaused
		return
	}
	p.status.State = PollError
}

func (p *Poller) snapshotLocked() WidgetStatus {
	status := p.status
	if status.Snapshot != nil {
		snap := *status.Snapshot
		status.Snapshot = &snap
	}
	return status
}

func (p *Poller) notify(status WidgetStatus) {
	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(status)
	}
}
