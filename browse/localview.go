package browse

import (
	"context"
	"errors"
	"strings"

	"printbrowsed/cups"
)

// localQueue is one queue defined in the local print service.
type localQueue struct {
	Name        string
	DeviceURI   string
	DaemonOwned bool
}

// notifyEvents is the event set the view subscribes to; any of them can
// change the queue list or a queue's configuration.
var notifyEvents = []string{
	"printer-added",
	"printer-changed",
	"printer-config-changed",
	"printer-modified",
	"printer-deleted",
	"printer-state-changed",
}

const notifyLeaseSeconds = 86400

// localView is a snapshot of the queues in the local print service. It
// prefers an ippget event subscription and only re-enumerates when an
// event arrived or the subscription lease expired; without subscription
// support every refresh is a full enumeration.
type localView struct {
	svc    LocalService
	queues map[string]localQueue // key: lower-cased queue name

	canSubscribe bool
	subID        int
	seq          int

	// inhibit suppresses refreshes while the reconciler or a poll worker
	// is mutating queues, so our own writes are not mis-read as external
	// configuration.
	inhibit int
}

func newLocalView(svc LocalService) *localView {
	return &localView{
		svc:          svc,
		queues:       make(map[string]localQueue),
		canSubscribe: true,
		subID:        -1,
	}
}

// Inhibit suppresses refreshes until Release is called.
func (v *localView) Inhibit() { v.inhibit++ }

// Release undoes one Inhibit.
func (v *localView) Release() {
	if v.inhibit > 0 {
		v.inhibit--
	}
}

// Refresh brings the snapshot up to date. While inhibited it returns the
// cached view untouched.
func (v *localView) Refresh(ctx context.Context) {
	if v.inhibit > 0 {
		return
	}

	if v.canSubscribe {
		if !v.refreshViaSubscription(ctx) {
			return
		}
	}
	v.enumerate(ctx)
}

// refreshViaSubscription consults the notification subscription and
// reports whether a full enumeration is needed.
func (v *localView) refreshViaSubscription(ctx context.Context) bool {
	if v.subID < 0 {
		id, err := v.svc.CreateSubscription(ctx, notifyEvents, notifyLeaseSeconds)
		if err != nil {
			DebugCtx("printer event subscription unavailable, falling back to enumeration", "err", err)
			v.canSubscribe = false
			return true
		}
		v.subID = id
		v.seq = 0
		return true
	}

	events, err := v.svc.Notifications(ctx, v.subID, v.seq+1)
	if err != nil {
		if errors.Is(err, cups.ErrNotFound) {
			// Lease expired; a new subscription starts a fresh sequence.
			v.subID = -1
			if id, err := v.svc.CreateSubscription(ctx, notifyEvents, notifyLeaseSeconds); err == nil {
				v.subID = id
				v.seq = 0
			}
			return true
		}
		_ = v.svc.CancelSubscription(ctx, v.subID)
		v.subID = -1
		return true
	}

	if len(events) == 0 {
		return false
	}
	for _, ev := range events {
		if ev.SequenceNumber > v.seq {
			v.seq = ev.SequenceNumber
		}
	}
	return true
}

// enumerate rebuilds the snapshot wholesale.
func (v *localView) enumerate(ctx context.Context) {
	printers, err := v.svc.Printers(ctx)
	if err != nil {
		WarnCtx("could not enumerate local queues", "err", err)
		return
	}
	queues := make(map[string]localQueue, len(printers))
	for _, p := range printers {
		queues[strings.ToLower(p.Name)] = localQueue{
			Name:        p.Name,
			DeviceURI:   p.DeviceURI,
			DaemonOwned: p.DaemonOwned,
		}
	}
	v.queues = queues
}

// Close cancels the notification subscription if one is held.
func (v *localView) Close(ctx context.Context) {
	if v.subID >= 0 {
		_ = v.svc.CancelSubscription(ctx, v.subID)
		v.subID = -1
	}
}

// byName returns the queue with the given name, case-insensitively.
func (v *localView) byName(name string) (localQueue, bool) {
	q, ok := v.queues[strings.ToLower(name)]
	return q, ok
}

// byURI returns the first queue whose device URI matches.
func (v *localView) byURI(uri string) (localQueue, bool) {
	for _, q := range v.queues {
		if strings.EqualFold(q.DeviceURI, uri) {
			return q, true
		}
	}
	return localQueue{}, false
}
