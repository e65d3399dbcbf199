package browse

import (
	"context"
	"fmt"
	"testing"

	"printbrowsed/cups"
)

// fakeRemote scripts an upstream print service for the poll worker.
type fakeRemote struct {
	printers []cups.Printer

	subSupported bool
	subID        int
	subLost      bool // next Notifications reports the lease gone

	events []cups.Event

	listCalls   int
	notifyCalls int
}

func (f *fakeRemote) SharedPrinters(ctx context.Context) ([]cups.Printer, error) {
	f.listCalls++
	out := make([]cups.Printer, len(f.printers))
	copy(out, f.printers)
	return out, nil
}

func (f *fakeRemote) CreateSubscription(ctx context.Context, events []string, leaseSeconds int) (int, error) {
	if !f.subSupported {
		return -1, fmt.Errorf("bad request")
	}
	f.subID++
	return f.subID, nil
}

func (f *fakeRemote) Notifications(ctx context.Context, subID, sinceSeq int) ([]cups.Event, error) {
	f.notifyCalls++
	if f.subLost {
		f.subLost = false
		return nil, fmt.Errorf("lease expired: %w", cups.ErrNotFound)
	}
	out := f.events
	f.events = nil
	return out, nil
}

func (f *fakeRemote) CancelSubscription(ctx context.Context, subID int) error {
	return nil
}

func newPollHarness(t *testing.T, remote *fakeRemote) (*Daemon, *pollContext) {
	t.Helper()
	d, _ := newTestDaemon(DefaultOptions(), newFakeService())
	p := &pollContext{
		server:       "server-a",
		port:         631,
		canSubscribe: true,
		subID:        -1,
		remote:       remote,
	}
	return d, p
}

func TestPollFirstCycleSubscribesAndEnumerates(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		subSupported: true,
		printers: []cups.Printer{
			{Name: "hplj", URI: "ipp://localhost:631/printers/hplj", Info: "HP LaserJet"},
		},
	}
	d, p := newPollHarness(t, remote)

	d.pollOnce(p)
	p.timer.Cancel()

	if p.subID < 0 {
		t.Fatal("first cycle must create the subscription")
	}
	if remote.listCalls != 1 {
		t.Fatalf("listCalls = %d, want 1", remote.listCalls)
	}
	if len(p.known) != 1 {
		t.Fatalf("known = %+v", p.known)
	}
	if len(d.catalogue) != 1 {
		t.Fatalf("catalogue = %d entries, want 1", len(d.catalogue))
	}
	e := d.catalogue[0]
	if e.Host != "server-a" {
		t.Errorf("host = %q, want the polled origin", e.Host)
	}
	if e.URI != "ipp://server-a:631/printers/hplj" {
		t.Errorf("uri = %q, want localhost rewritten to the polled host", e.URI)
	}
}

func TestPollIdleCycleReasserts(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		subSupported: true,
		printers: []cups.Printer{
			{Name: "hplj", URI: "ipp://localhost:631/printers/hplj"},
		},
	}
	d, p := newPollHarness(t, remote)

	d.pollOnce(p)
	p.timer.Cancel()
	d.reconcile() // queue created, entry confirmed

	e := d.catalogue[0]

	// Second cycle: no events upstream. The known list is re-asserted so
	// the entry's browse lifecycle deadline is refreshed, with no new
	// enumeration.
	d.pollOnce(p)
	p.timer.Cancel()

	if remote.listCalls != 1 {
		t.Fatalf("idle cycle must not re-enumerate, listCalls = %d", remote.listCalls)
	}
	if e.Status != StatusBrowsePacket {
		t.Fatalf("status = %v, want browse-packet-received after keepalive", e.Status)
	}
	if !e.Deadline.After(d.now()) {
		t.Error("keepalive must push the deadline out")
	}
}

func TestPollEventForcesEnumeration(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{subSupported: true}
	d, p := newPollHarness(t, remote)

	d.pollOnce(p)
	p.timer.Cancel()

	remote.printers = []cups.Printer{
		{Name: "new", URI: "ipp://localhost:631/printers/new", Info: "New Queue"},
	}
	remote.events = []cups.Event{{SequenceNumber: 7, Name: "printer-added"}}

	d.pollOnce(p)
	p.timer.Cancel()

	if remote.listCalls != 2 {
		t.Fatalf("event must force enumeration, listCalls = %d", remote.listCalls)
	}
	if p.seq != 7 {
		t.Errorf("sequence number = %d, want 7", p.seq)
	}
	if len(d.catalogue) != 1 || d.catalogue[0].Name != "new" {
		t.Errorf("catalogue = %+v", d.Catalogue())
	}
}

func TestPollExpiredLeaseRecreatesSubscription(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{subSupported: true}
	d, p := newPollHarness(t, remote)

	d.pollOnce(p)
	p.timer.Cancel()
	firstSub := p.subID

	remote.subLost = true
	d.pollOnce(p)
	p.timer.Cancel()

	if p.subID == firstSub || p.subID < 0 {
		t.Fatalf("subscription must be recreated, id %d -> %d", firstSub, p.subID)
	}
	if remote.listCalls != 2 {
		t.Fatalf("expired lease must force enumeration, listCalls = %d", remote.listCalls)
	}
}

func TestPollWithoutSubscriptionsEnumeratesEveryCycle(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{subSupported: false}
	d, p := newPollHarness(t, remote)

	d.pollOnce(p)
	p.timer.Cancel()
	if p.canSubscribe {
		t.Fatal("failed subscription must stick")
	}
	d.pollOnce(p)
	p.timer.Cancel()

	if remote.listCalls != 2 {
		t.Fatalf("every cycle must enumerate, listCalls = %d", remote.listCalls)
	}
}
