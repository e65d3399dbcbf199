package browse

import (
	"context"
	"time"

	"printbrowsed/cups"
)

// Schedule constants. Negative delays mean "on the next pass"; the
// reconciler applies a uniform deadline-has-passed test, so they all
// compose the same way.
const (
	timeoutImmediately = -time.Second
	timeoutConfirm     = 10 * time.Second
	timeoutRetry       = 10 * time.Second
	timeoutRemove      = -time.Second
)

var noDeadline time.Time

// scheduleReconcile recomputes the single reconciler timer from the
// minimum future deadline in the catalogue. At most one reconciler timer
// exists at any point.
func (d *Daemon) scheduleReconcile() {
	d.reconcileTimer.Cancel()
	d.reconcileTimer = nil

	now := d.now()
	var next time.Time
	for _, e := range d.catalogue {
		if e.Deadline.IsZero() {
			continue
		}
		if next.IsZero() || e.Deadline.Before(next) {
			next = e.Deadline
		}
	}
	if next.IsZero() {
		return // all entries steady; idle until a source wakes us
	}
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	d.reconcileTimer = d.schedule(delay, d.reconcile)
}

// reconcile runs one pass over the catalogue, advancing every entry whose
// deadline has passed. Entries slated for removal are collected and
// dropped after the scan so the iteration never observes a shifting slice.
func (d *Daemon) reconcile() {
	ctx := context.Background()
	now := d.now()
	var removals []*Entry

	for _, e := range d.catalogue {
		if e.Status == StatusUnconfirmed && e.expired(now) {
			InfoCtx("queue not re-confirmed, retiring", "name", e.Name)
			e.Status = StatusDisappeared
			e.Deadline = now
		}

		switch e.Status {
		case StatusDisappeared:
			if e.Duplicate {
				removals = append(removals, e)
				continue
			}
			if !e.expired(now) {
				continue
			}
			if !d.retireQueue(ctx, e, now) {
				continue
			}
			removals = append(removals, e)

		case StatusToBeCreated, StatusBrowsePacket:
			if e.Duplicate || !e.expired(now) {
				continue
			}
			d.createQueue(ctx, e, now)
		}
	}

	for _, e := range removals {
		InfoCtx("removing catalogue entry", "name", e.Name, "duplicate", e.Duplicate)
		d.removeEntry(e)
	}

	d.scheduleReconcile()
	d.maybeArmShutdown()
}

// retireQueue deletes the local queue behind a disappeared entry. It
// reports whether the entry may leave the catalogue; every blocked or
// failed attempt reschedules the entry instead of dropping it.
func (d *Daemon) retireQueue(ctx context.Context, e *Entry, now time.Time) bool {
	jobs, err := d.local.ActiveJobs(ctx, e.Name)
	if err != nil {
		WarnCtx("print service unreachable, delaying queue removal",
			"name", e.Name, "err", err)
		e.Deadline = now.Add(timeoutRetry)
		return false
	}
	if jobs > 0 {
		InfoCtx("queue still has active jobs, delaying removal",
			"name", e.Name, "jobs", jobs)
		e.Deadline = now.Add(timeoutRetry)
		return false
	}

	def, err := d.local.DefaultPrinter(ctx)
	if err != nil {
		e.Deadline = now.Add(timeoutRetry)
		return false
	}
	if def != "" && def == e.Name {
		InfoCtx("queue is the system default, delaying removal", "name", e.Name)
		e.Deadline = now.Add(timeoutRetry)
		return false
	}

	d.view.Inhibit()
	err = d.local.DeletePrinter(ctx, e.Name)
	d.view.Release()
	if err != nil {
		WarnCtx("could not delete queue", "name", e.Name, "err", err)
		e.Deadline = now.Add(timeoutRetry)
		return false
	}
	InfoCtx("deleted queue", "name", e.Name)
	return true
}

// createQueue creates or modifies the local queue behind an entry and
// advances its state machine. Description artefacts are consumed by the
// request and removed afterwards on every path.
func (d *Daemon) createQueue(ctx context.Context, e *Entry, now time.Time) {
	d.ensureArtefact(ctx, e)

	update := d.queueUpdate(e)

	d.view.Inhibit()
	err := d.local.AddModifyPrinter(ctx, update)
	d.view.Release()
	e.dropArtefact()

	if err != nil {
		WarnCtx("could not create queue", "name", e.Name, "err", err)
		e.Deadline = now.Add(timeoutRetry)
		return
	}

	if e.Status == StatusBrowsePacket {
		// Legacy-browsed queues must be re-asserted before the browse
		// timeout or they are retired.
		e.Status = StatusDisappeared
		e.Deadline = now.Add(d.opts.BrowseTimeout)
	} else {
		e.Status = StatusConfirmed
		e.Deadline = noDeadline
	}
	InfoCtx("queue up to date", "name", e.Name, "uri", e.URI, "status", e.Status.String())
}

// queueUpdate renders the entry into the add/modify request shape.
func (d *Daemon) queueUpdate(e *Entry) cups.QueueUpdate {
	info := e.Info
	if info == "" {
		if e.MakeModel != "" {
			info = e.MakeModel
		} else {
			info = e.Name
		}
	}
	u := cups.QueueUpdate{
		Name:      e.Name,
		DeviceURI: e.URI,
		Info:      info,
		Location:  e.Location,
		Options:   map[string]string{cups.OwnerOption: "true"},
	}
	if e.DescSource != DescriptionRaw && e.ArtefactPath != "" {
		u.PPDPath = e.ArtefactPath
	}
	return u
}

// handleServiceRemove applies the disappearance protocol for a DNS-SD
// REMOVE event. If a standby duplicate exists for the same local name on
// another host, the removed entry adopts its identity and the queue fails
// over; otherwise the entry is marked for retirement.
func (d *Daemon) handleServiceRemove(serviceName, serviceType, serviceDomain string) {
	e := d.lookupService(serviceName, serviceType, serviceDomain)
	if e == nil {
		return
	}
	now := d.now()

	if dup := d.namesake(e, true); dup != nil {
		InfoCtx("failing queue over to standby",
			"name", e.Name, "from", e.Host, "to", dup.Host)
		e.URI = dup.URI
		e.Host = dup.Host
		e.ServiceName = dup.ServiceName
		e.ServiceType = dup.ServiceType
		e.ServiceDomain = dup.ServiceDomain
		e.DescSource = dup.DescSource
		e.ArtefactPath = dup.ArtefactPath
		dup.ArtefactPath = ""
		e.PDLs = dup.PDLs
		e.MakeModel = dup.MakeModel
		e.Status = StatusToBeCreated
		e.Deadline = now

		dup.Status = StatusDisappeared
		dup.Deadline = now
	} else {
		InfoCtx("remote printer disappeared", "name", e.Name)
		e.Status = StatusDisappeared
		e.Deadline = now.Add(timeoutRemove)
	}
	d.scheduleReconcile()
}
