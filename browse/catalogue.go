package browse

import (
	"sort"
	"strings"
	"time"
)

// Status is the per-entry state machine position.
type Status int

const (
	// StatusUnconfirmed marks a queue recovered from a prior session that
	// no discovery source has re-asserted yet.
	StatusUnconfirmed Status = iota
	// StatusConfirmed means the local queue exists and matches the entry.
	StatusConfirmed
	// StatusToBeCreated schedules queue creation or modification.
	StatusToBeCreated
	// StatusBrowsePacket marks an entry kept alive by legacy broadcast or
	// poll re-assertion; it cycles through creation and a timed retirement.
	StatusBrowsePacket
	// StatusDisappeared schedules queue removal once the deadline passes.
	StatusDisappeared
)

func (s Status) String() string {
	switch s {
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusConfirmed:
		return "confirmed"
	case StatusToBeCreated:
		return "to-be-created"
	case StatusBrowsePacket:
		return "browse-packet-received"
	case StatusDisappeared:
		return "disappeared"
	}
	return "unknown"
}

// DescriptionSource selects what rides along with queue creation.
type DescriptionSource int

const (
	// DescriptionRaw sends no document; the remote queue carries its own
	// description (shared remote queues).
	DescriptionRaw DescriptionSource = iota
	// DescriptionPPDFile attaches a synthesised PPD.
	DescriptionPPDFile
	// DescriptionScript attaches an interface script driving the IPP filter.
	DescriptionScript
)

// Entry is one remote printer the daemon maintains a local queue for.
type Entry struct {
	Name string // local queue name, sanitised
	URI  string // device URI pointing at the remote printer
	Host string // sanitised remote host, ".local" suffix stripped

	// Discovery identity, set iff the entry originated from DNS-SD.
	ServiceName   string
	ServiceType   string
	ServiceDomain string

	Status Status
	// Deadline is the absolute time the reconciler must act; the zero
	// value means no action is scheduled.
	Deadline time.Time

	// Duplicate entries share a name with the queue owner and are kept as
	// standbys for failover; they never own a local queue.
	Duplicate bool

	DescSource DescriptionSource
	// ArtefactPath is the temp PPD or interface script, present between
	// generation and use.
	ArtefactPath string

	// Capability hints for direct network printers.
	PDLs      []string
	MakeModel string

	Location string
	Info     string
}

// expired reports whether the entry's deadline has passed. Entries with no
// scheduled action never expire.
func (e *Entry) expired(now time.Time) bool {
	return !e.Deadline.IsZero() && !e.Deadline.After(now)
}

// insertEntry adds e keeping the catalogue ordered by name.
func (d *Daemon) insertEntry(e *Entry) {
	i := sort.Search(len(d.catalogue), func(i int) bool {
		return strings.ToLower(d.catalogue[i].Name) >= strings.ToLower(e.Name)
	})
	d.catalogue = append(d.catalogue, nil)
	copy(d.catalogue[i+1:], d.catalogue[i:])
	d.catalogue[i] = e
	d.cancelShutdownTimer()
}

// removeEntry drops e from the catalogue.
func (d *Daemon) removeEntry(e *Entry) {
	for i, c := range d.catalogue {
		if c == e {
			d.catalogue = append(d.catalogue[:i], d.catalogue[i+1:]...)
			break
		}
	}
	e.dropArtefact()
}

// lookupEntry finds the catalogue entry an advertisement for (name, host)
// belongs to: the name must match case-insensitively, and the host must
// match unless the entry has no host yet or is waiting to be confirmed or
// retired, in which case any host may claim it.
func (d *Daemon) lookupEntry(name, host string) *Entry {
	for _, e := range d.catalogue {
		if !strings.EqualFold(e.Name, name) {
			continue
		}
		if strings.EqualFold(e.Host, host) || e.Host == "" ||
			e.Status == StatusUnconfirmed || e.Status == StatusDisappeared {
			return e
		}
	}
	return nil
}

// lookupByURI finds the entry owning a device URI.
func (d *Daemon) lookupByURI(uri string) *Entry {
	for _, e := range d.catalogue {
		if strings.EqualFold(e.URI, uri) {
			return e
		}
	}
	return nil
}

// lookupService finds the entry matching a DNS-SD identity.
func (d *Daemon) lookupService(name, stype, domain string) *Entry {
	for _, e := range d.catalogue {
		if strings.EqualFold(e.ServiceName, name) &&
			strings.EqualFold(e.ServiceType, stype) &&
			strings.EqualFold(e.ServiceDomain, domain) {
			return e
		}
	}
	return nil
}

// namesake finds another entry with the same name on a different host,
// optionally restricted to duplicates.
func (d *Daemon) namesake(e *Entry, duplicatesOnly bool) *Entry {
	for _, c := range d.catalogue {
		if c == e || !strings.EqualFold(c.Name, e.Name) {
			continue
		}
		if strings.EqualFold(c.Host, e.Host) {
			continue
		}
		if duplicatesOnly && !c.Duplicate {
			continue
		}
		return c
	}
	return nil
}
