package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"printbrowsed/cups"
)

// pollInterval is how often an upstream is re-checked; subscriptions make
// the common case a cheap notification pull.
const pollInterval = 60 * time.Second

// pollContext is the per-upstream worker state.
type pollContext struct {
	server string
	port   int

	canSubscribe bool
	subID        int
	seq          int

	// known is the last full shared-printer list, re-asserted as a
	// keepalive when nothing changed.
	known []cups.Printer

	remote RemoteService
	timer  *Timer
}

// connectRemote is swapped out by tests.
var connectRemote = func(p PollServer) RemoteService {
	c := cups.New(p.Host, p.Port)
	if p.Major != 0 {
		c.SetVersion(p.Major, p.Minor)
	}
	return c
}

// startPollers arms one worker per configured BrowsePoll upstream.
func (d *Daemon) startPollers() {
	for _, srv := range d.opts.BrowsePoll {
		p := &pollContext{
			server:       srv.Host,
			port:         srv.Port,
			canSubscribe: true,
			subID:        -1,
			remote:       connectRemote(srv),
		}
		d.pollers = append(d.pollers, p)
		p.timer = d.schedule(0, func() { d.pollOnce(p) })
	}
}

// pollOnce runs one poll cycle against an upstream server: maintain the
// event subscription, pull notifications, and fall back to (or force) a
// full shared-printer enumeration. It always reschedules itself.
func (d *Daemon) pollOnce(p *pollContext) {
	ctx := context.Background()
	defer func() {
		p.timer = d.schedule(pollInterval, func() { d.pollOnce(p) })
	}()

	forceFull := false

	if p.canSubscribe && p.subID < 0 {
		id, err := p.remote.CreateSubscription(ctx, notifyEvents, notifyLeaseSeconds)
		if err != nil {
			DebugCtx("upstream does not support subscriptions",
				"server", p.server, "err", err)
			p.canSubscribe = false
			forceFull = true
		} else {
			p.subID = id
			p.seq = 0
			forceFull = true
		}
	} else if p.canSubscribe {
		events, err := p.remote.Notifications(ctx, p.subID, p.seq+1)
		switch {
		case errors.Is(err, cups.ErrNotFound):
			// Lease expired; start over and re-enumerate.
			p.subID = -1
			if id, cerr := p.remote.CreateSubscription(ctx, notifyEvents, notifyLeaseSeconds); cerr == nil {
				p.subID = id
				p.seq = 0
			}
			forceFull = true
		case err != nil:
			WarnCtx("notification pull failed", "server", p.server, "err", err)
			_ = p.remote.CancelSubscription(ctx, p.subID)
			p.subID = -1
			forceFull = true
		case len(events) > 0:
			for _, ev := range events {
				if ev.SequenceNumber > p.seq {
					p.seq = ev.SequenceNumber
				}
			}
			forceFull = true
		}
	}

	if forceFull || !p.canSubscribe {
		printers, err := p.remote.SharedPrinters(ctx)
		if err != nil {
			WarnCtx("could not poll upstream server", "server", p.server, "err", err)
			return
		}
		d.view.Inhibit()
		for _, pr := range printers {
			d.foundPolledPrinter(ctx, p, pr)
		}
		d.view.Release()
		p.known = printers
		DebugCtx("polled upstream server", "server", p.server, "printers", len(printers))
		return
	}

	// Nothing changed upstream; re-assert the known printers so their
	// entries do not time out.
	d.view.Inhibit()
	for _, pr := range p.known {
		d.foundPolledPrinter(ctx, p, pr)
	}
	d.view.Release()
}

// foundPolledPrinter rewrites an upstream printer URI onto the polled host
// and funnels it through the common remote-queue path.
func (d *Daemon) foundPolledPrinter(ctx context.Context, p *pollContext, pr cups.Printer) {
	uri := pr.URI
	if uri == "" {
		uri = fmt.Sprintf("ipp://%s:%d/printers/%s", p.server, p.port, pr.Name)
	} else if scheme, _, _, resource, err := cups.SplitURI(uri); err == nil {
		// The upstream reports localhost URIs for its own queues; the
		// poll target is the reachable origin.
		uri = fmt.Sprintf("%s://%s:%d%s", scheme, p.server, p.port, resource)
	}
	d.foundRemoteQueue(ctx, uri, "", pr.Info)
}
