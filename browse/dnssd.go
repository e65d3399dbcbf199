package browse

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

var dnssdServiceTypes = []string{"_ipp._tcp", "_ipps._tcp"}

// newResolver is swapped out by tests.
var newResolver = func() (*zeroconf.Resolver, error) {
	return zeroconf.NewResolver(nil)
}

// startDNSSD opens one browser per IPP service type. Browsers that die are
// restarted with exponential backoff; while discovery is gone the
// avahi-bound auto-shutdown mode counts the daemon as idle.
func (d *Daemon) startDNSSD(ctx context.Context) {
	hostname, _ := os.Hostname()
	for _, st := range dnssdServiceTypes {
		st := st
		go d.browseLoop(ctx, st, hostname)
	}
}

func (d *Daemon) browseLoop(ctx context.Context, serviceType, localHost string) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry for the life of the process
	bo.MaxInterval = time.Minute

	op := func() error {
		resolver, err := newResolver()
		if err != nil {
			d.post(func() { d.discoveryLost() })
			return err
		}
		d.post(func() { d.discoveryPresent() })

		entries := make(chan *zeroconf.ServiceEntry)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for e := range entries {
				d.handleServiceEntry(e, localHost)
			}
		}()

		InfoCtx("browsing for printers", "type", serviceType)
		err = resolver.Browse(ctx, serviceType, "local.", entries)
		<-done
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			WarnCtx("service browser failed, will reconnect", "type", serviceType, "err", err)
			d.post(func() { d.discoveryLost() })
			return err
		}
		// Browse returned without error but the channel closed: the
		// discovery client went away. Reconnect.
		d.post(func() { d.discoveryLost() })
		return errBrowserStopped
	}
	_ = backoff.Retry(op, backoff.WithContext(bo, ctx))
}

type browserStopped struct{}

func (browserStopped) Error() string { return "service browser stopped" }

var errBrowserStopped = browserStopped{}

// handleServiceEntry turns one discovery callback into a loop event.
// Goodbye records (TTL 0) are REMOVE events; everything else is a NEW
// with the resolved host, port and TXT record.
func (d *Daemon) handleServiceEntry(e *zeroconf.ServiceEntry, localHost string) {
	if e == nil {
		return
	}
	instance, service, domain := e.Instance, e.Service, e.Domain

	if e.TTL == 0 {
		d.post(func() {
			d.handleServiceRemove(instance, service, domain)
		})
		return
	}

	host := strings.TrimSuffix(e.HostName, ".")
	if localHost != "" && strings.EqualFold(host, localHost+".local") {
		// Our own shared queues come back at us; CUPS already has them.
		return
	}

	txt := parseTXT(e.Text)
	ad := Advertisement{
		Host:          host,
		Port:          e.Port,
		Resource:      txt["rp"],
		ServiceName:   instance,
		ServiceType:   service,
		ServiceDomain: domain,
		TXT:           txt,
	}
	d.post(func() {
		d.intake(context.Background(), ad)
	})
}

// parseTXT splits DNS-SD TXT strings into a key/value map. Keys are
// matched case-sensitively except for the handful of well-known ones CUPS
// publishes with varying case.
func parseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, kv := range txt {
		if kv == "" {
			continue
		}
		k, v := kv, ""
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k, v = kv[:i], kv[i+1:]
		}
		switch lk := strings.ToLower(k); lk {
		case "rp", "ty", "pdl", "product", "adminurl", "note", "priority":
			m[lk] = v
		default:
			m[k] = v
		}
	}
	return m
}
