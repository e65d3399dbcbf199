package browse

import (
	"context"
	"errors"
	"time"

	"printbrowsed/cups"
)

// ErrNothingToDo is returned by Run when no discovery direction is
// enabled and no upstream servers are configured; the process has no work
// and exits cleanly.
var ErrNothingToDo = errors.New("no browse directions enabled and no poll servers configured")

// Daemon is the discovery and reconciliation engine. Everything it owns
// (the catalogue, the local printer view, the timers) is mutated only from
// its single loop goroutine; discovery sources and signal handlers post
// closures into the loop instead of touching state directly.
type Daemon struct {
	opts Options

	loop chan func()
	quit chan struct{}

	local LocalService
	view  *localView

	catalogue []*Entry

	ifaces   *ifaceTracker
	listener *listener
	pollers  []*pollContext

	reconcileTimer *Timer
	broadcastTimer *Timer
	shutdownTimer  *Timer

	autoShutdown bool
	terminating  bool

	// fetchAttrs resolves direct-printer attributes; tests stub it.
	fetchAttrs AttributeFetcher

	// nowFn is the clock; tests substitute a manual one.
	nowFn func() time.Time
}

// New builds a daemon around a local print service client.
func New(opts Options, local LocalService) *Daemon {
	opts.normalize()
	d := &Daemon{
		opts:       opts,
		loop:       make(chan func(), 1024),
		quit:       make(chan struct{}),
		local:      local,
		ifaces:     newIfaceTracker(opts.BrowsePort),
		fetchAttrs: fetchPrinterAttributes,
		nowFn:      time.Now,
	}
	d.view = newLocalView(local)
	d.autoShutdown = opts.AutoShutdown == AutoShutdownOn
	return d
}

func (d *Daemon) now() time.Time {
	return d.nowFn()
}

// post enqueues fn for execution on the loop goroutine.
func (d *Daemon) post(fn func()) {
	select {
	case d.loop <- fn:
	case <-d.quit:
	}
}

func (d *Daemon) closed() bool {
	select {
	case <-d.quit:
		return true
	default:
		return false
	}
}

// Run starts the discovery sources and drives the loop until the context
// is cancelled or a shutdown condition fires. It is the only goroutine
// that touches daemon state.
func (d *Daemon) Run(ctx context.Context) error {
	hasWork := d.opts.BrowseRemoteDNSSD || d.opts.BrowseRemoteCUPS ||
		d.opts.BrowseLocalCUPS || len(d.opts.BrowsePoll) > 0
	if !hasWork {
		return ErrNothingToDo
	}

	d.ifaces.Refresh()
	d.view.Refresh(ctx)
	d.recoverQueues()

	if d.opts.BrowseRemoteCUPS {
		if err := d.startListener(); err != nil {
			// Losing one direction is not fatal; the rest keep running.
			WarnCtx("disabling legacy browse reception", "err", err)
			d.opts.BrowseRemoteCUPS = false
		}
	}
	if d.opts.BrowseLocalCUPS {
		d.startBroadcaster()
	}
	if d.opts.BrowseRemoteDNSSD {
		d.startDNSSD(ctx)
	}
	d.startPollers()
	d.scheduleReconcile()
	d.maybeArmShutdown()

	for {
		select {
		case <-ctx.Done():
			d.terminate()
		case fn := <-d.loop:
			fn()
		}
		if d.terminating {
			break
		}
	}

	close(d.quit)
	if d.listener != nil {
		_ = d.listener.conn.Close()
	}
	d.view.Close(context.Background())
	return nil
}

// Shutdown requests loop exit from outside the loop.
func (d *Daemon) Shutdown() {
	d.post(d.terminate)
}

// terminate retires every queue the daemon owns and exits the loop. Queues
// that cannot be removed (jobs pending, default printer) survive into the
// next session and are recovered from their owner sentinel.
func (d *Daemon) terminate() {
	if d.terminating {
		return
	}
	InfoCtx("shutting down", "entries", len(d.catalogue))
	now := d.now()
	for _, e := range d.catalogue {
		e.Status = StatusDisappeared
		e.Deadline = now
	}
	d.reconcile()
	d.terminating = true
}

// recoverQueues seeds the catalogue from queues a prior session left
// behind: every local queue carrying the owner sentinel starts
// unconfirmed and is retired unless some discovery source re-asserts it.
func (d *Daemon) recoverQueues() {
	grace := timeoutConfirm
	if d.opts.BrowseRemoteCUPS {
		grace = d.opts.BrowseTimeout
	}
	now := d.now()
	for _, q := range d.view.queues {
		if !q.DaemonOwned {
			continue
		}
		host := ""
		if _, h, _, _, err := cups.SplitURI(q.DeviceURI); err == nil {
			host = sanitiseHost(h)
		}
		e := &Entry{
			Name:     q.Name,
			URI:      q.DeviceURI,
			Host:     host,
			Status:   StatusUnconfirmed,
			Deadline: now.Add(grace),
		}
		d.insertEntry(e)
		InfoCtx("recovered queue from previous session", "name", e.Name, "uri", e.URI)
	}
}

// HandleSignal maps process signals onto lifecycle actions: term/int
// drain and exit, usr1/usr2 toggle auto-shutdown. Called from the signal
// goroutine; the work happens on the loop.
func (d *Daemon) HandleSignal(sig string) {
	switch sig {
	case "term", "int":
		d.Shutdown()
	case "usr1":
		d.post(func() {
			InfoCtx("auto shutdown disabled by signal")
			d.autoShutdown = false
			d.cancelShutdownTimer()
		})
	case "usr2":
		d.post(func() {
			InfoCtx("auto shutdown enabled by signal")
			d.autoShutdown = true
			d.maybeArmShutdown()
		})
	}
}

// discoveryPresent and discoveryLost feed the avahi-bound auto-shutdown
// mode: the daemon only lingers while the discovery service is alive.
func (d *Daemon) discoveryPresent() {
	if d.opts.AutoShutdown != AutoShutdownAvahi {
		return
	}
	if d.autoShutdown {
		d.autoShutdown = false
		d.cancelShutdownTimer()
	}
}

func (d *Daemon) discoveryLost() {
	if d.opts.AutoShutdown != AutoShutdownAvahi {
		return
	}
	if !d.autoShutdown {
		d.autoShutdown = true
		d.maybeArmShutdown()
	}
}

// maybeArmShutdown schedules loop exit when auto-shutdown applies and the
// catalogue is empty. Any intake that grows the catalogue cancels it.
func (d *Daemon) maybeArmShutdown() {
	if !d.autoShutdown || d.terminating || len(d.catalogue) > 0 {
		return
	}
	if d.shutdownTimer != nil {
		return
	}
	InfoCtx("catalogue empty, scheduling auto shutdown",
		"timeout", d.opts.AutoShutdownTimeout)
	d.shutdownTimer = d.schedule(d.opts.AutoShutdownTimeout, func() {
		d.shutdownTimer = nil
		if len(d.catalogue) == 0 {
			d.terminate()
		}
	})
}

func (d *Daemon) cancelShutdownTimer() {
	if d.shutdownTimer != nil {
		d.shutdownTimer.Cancel()
		d.shutdownTimer = nil
	}
}

// Catalogue returns a snapshot copy for inspection. Only safe to call
// from the loop (tests drive the loop directly).
func (d *Daemon) Catalogue() []Entry {
	out := make([]Entry, len(d.catalogue))
	for i, e := range d.catalogue {
		out[i] = *e
	}
	return out
}
