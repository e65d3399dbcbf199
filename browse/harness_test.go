package browse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"

	"printbrowsed/cups"
)

// fakeService emulates the slice of CUPS the daemon drives. Queue
// mutations update the printer list and emit notification events, the way
// the real service feeds the view's subscription.
type fakeService struct {
	mu sync.Mutex

	printers []cups.Printer
	def      string
	jobs     map[string]int

	unreachable bool
	subBroken   bool

	nextSub int
	seq     int
	events  []cups.Event

	addModify []cups.QueueUpdate
	deleted   []string
	calls     int
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[string]int{}, nextSub: 100}
}

func (f *fakeService) emit(name string) {
	f.seq++
	f.events = append(f.events, cups.Event{SequenceNumber: f.seq, Name: name})
}

func (f *fakeService) addPrinter(p cups.Printer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.printers = append(f.printers, p)
}

func (f *fakeService) check() error {
	f.calls++
	if f.unreachable {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *fakeService) Printers(ctx context.Context) ([]cups.Printer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	out := make([]cups.Printer, len(f.printers))
	copy(out, f.printers)
	return out, nil
}

func (f *fakeService) DefaultPrinter(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return "", err
	}
	return f.def, nil
}

func (f *fakeService) ActiveJobs(ctx context.Context, queue string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.jobs[queue], nil
}

func (f *fakeService) AddModifyPrinter(ctx context.Context, q cups.QueueUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.addModify = append(f.addModify, q)

	owned := strings.EqualFold(q.Options[cups.OwnerOption], "true")
	for i := range f.printers {
		if strings.EqualFold(f.printers[i].Name, q.Name) {
			f.printers[i].DeviceURI = q.DeviceURI
			f.printers[i].Info = q.Info
			f.printers[i].DaemonOwned = owned
			f.emit("printer-modified")
			return nil
		}
	}
	f.printers = append(f.printers, cups.Printer{
		Name:        q.Name,
		DeviceURI:   q.DeviceURI,
		Info:        q.Info,
		DaemonOwned: owned,
	})
	f.emit("printer-added")
	return nil
}

func (f *fakeService) DeletePrinter(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.deleted = append(f.deleted, name)
	for i := range f.printers {
		if strings.EqualFold(f.printers[i].Name, name) {
			f.printers = append(f.printers[:i], f.printers[i+1:]...)
			break
		}
	}
	f.emit("printer-deleted")
	return nil
}

func (f *fakeService) CreateSubscription(ctx context.Context, events []string, leaseSeconds int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return -1, err
	}
	if f.subBroken {
		return -1, fmt.Errorf("subscriptions not supported")
	}
	f.nextSub++
	return f.nextSub, nil
}

func (f *fakeService) Notifications(ctx context.Context, subID, sinceSeq int) ([]cups.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []cups.Event
	for _, ev := range f.events {
		if ev.SequenceNumber >= sinceSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeService) CancelSubscription(ctx context.Context, subID int) error {
	return nil
}

// newTestDaemon builds a daemon with a controllable clock and no live
// discovery sources. The loop goroutine is not started; tests invoke loop
// work directly, which matches the single-threaded execution model.
func newTestDaemon(opts Options, svc *fakeService) (*Daemon, *time.Time) {
	d := New(opts, svc)
	now := time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)
	clock := &now
	d.nowFn = func() time.Time { return *clock }
	d.fetchAttrs = func(ctx context.Context, uri string) (goipp.Attributes, error) {
		return nil, fmt.Errorf("no printer behind %s", uri)
	}
	return d, clock
}

// cupsPrinter builds a minimal local queue record.
func cupsPrinter(name, deviceURI string, owned bool) cups.Printer {
	return cups.Printer{
		Name:        name,
		DeviceURI:   deviceURI,
		DaemonOwned: owned,
	}
}

// dnssdAd builds the advertisement shape the DNS-SD browser produces.
func dnssdAd(instance, host string, txt map[string]string) Advertisement {
	return Advertisement{
		Host:          host,
		Port:          631,
		Resource:      txt["rp"],
		ServiceName:   instance,
		ServiceType:   "_ipp._tcp",
		ServiceDomain: "local",
		TXT:           txt,
	}
}
