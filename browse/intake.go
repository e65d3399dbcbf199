package browse

import (
	"context"
	"fmt"
	"strings"
)

// Advertisement is the normalised shape every discovery source funnels
// into intake. DNS-SD events carry a service identity and TXT record;
// legacy broadcast packets and poll results carry neither.
type Advertisement struct {
	Host     string
	Port     int
	Resource string

	ServiceName   string
	ServiceType   string
	ServiceDomain string

	// TXT is nil for non-DNS-SD origins.
	TXT map[string]string

	// Secure requests the ipps scheme even without a service type, so
	// broadcast and poll origins preserve the scheme of the advertised URI.
	Secure bool

	Location string
	Info     string
}

// usablePDLs are the page description languages the daemon can drive
// through its filter; a direct printer advertising none of them is only
// eligible when direct-printer queues are forced on.
var usablePDLs = []string{
	"application/postscript",
	"application/pdf",
	"image/pwg-raster",
	"application/vnd.hp-PCL",
	"application/vnd.hp-PCLXL",
}

// sanitiseName reduces s to the queue-name character class: letters,
// digits and underscore, with any run of other characters collapsed into
// a single dash and dashes trimmed from the ends.
func sanitiseName(s string) string {
	return sanitise(s, false)
}

// sanitisePDL keeps the extra characters MIME types need.
func sanitisePDL(s string) string {
	return sanitise(s, true)
}

func sanitise(s string, pdl bool) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		ok := r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_'
		if pdl && (r == '/' || r == '.' || r == ',') {
			ok = true
		}
		if !ok {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('-')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sanitiseHost strips the mDNS ".local" suffix, tolerating the
// fully-qualified trailing dot form.
func sanitiseHost(host string) string {
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimSuffix(host, ".local")
	return host
}

// hasFoldPrefix reports whether s begins with prefix, case-insensitively.
func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// uriTail returns everything after the scheme separator, for change
// detection that ignores an ipp->ipps upgrade.
func uriTail(uri string) string {
	if i := strings.Index(uri, ":"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// txtModel picks the advertised model name: ty, then usb_MDL, then the
// parenthesised product.
func txtModel(txt map[string]string) string {
	if v := txt["ty"]; v != "" {
		return v
	}
	if v := txt["usb_MDL"]; v != "" {
		return v
	}
	v := txt["product"]
	v = strings.TrimPrefix(v, "(")
	v = strings.TrimSuffix(v, ")")
	return v
}

// txtPDLs extracts the advertised page description language list.
func txtPDLs(txt map[string]string) []string {
	raw := txt["pdl"]
	if raw == "" {
		return nil
	}
	var pdls []string
	for _, p := range strings.Split(raw, ",") {
		if p = sanitisePDL(strings.TrimSpace(p)); p != "" {
			pdls = append(pdls, p)
		}
	}
	return pdls
}

func anyUsablePDL(pdls []string) bool {
	for _, p := range pdls {
		for _, u := range usablePDLs {
			if strings.EqualFold(p, u) {
				return true
			}
		}
	}
	return false
}

// intake is the single entry point every discovery source calls. It
// decides eligibility, computes the local queue name, and inserts or
// updates the catalogue entry. It returns the affected entry, or nil when
// the advertisement was rejected or needed no action.
func (d *Daemon) intake(ctx context.Context, ad Advertisement) *Entry {
	scheme := "ipp"
	if ad.Secure || strings.Contains(ad.ServiceType, "_ipps") {
		scheme = "ipps"
	}
	resource := strings.TrimPrefix(ad.Resource, "/")
	uri := fmt.Sprintf("%s://%s:%d/%s", scheme, ad.Host, ad.Port, resource)
	host := sanitiseHost(ad.Host)

	sharedQueue := hasFoldPrefix(resource, "printers/") || hasFoldPrefix(resource, "classes/")

	var base string
	var pdls []string
	var model string
	if sharedQueue {
		base = resource[strings.IndexByte(resource, '/')+1:]
		// A shared queue advertised without a parenthesised product has no
		// description file on its server and cannot be driven remotely.
		if ad.TXT != nil {
			product := ad.TXT["product"]
			if !strings.HasPrefix(product, "(") || !strings.HasSuffix(product, ")") {
				DebugCtx("ignoring raw remote queue", "host", host, "resource", resource)
				return nil
			}
		}
	} else {
		if ad.TXT != nil {
			model = txtModel(ad.TXT)
			pdls = txtPDLs(ad.TXT)
		}
		if !d.opts.CreateIPPPrinterQueues && !anyUsablePDL(pdls) {
			DebugCtx("ignoring direct printer without usable PDL", "host", host, "model", model)
			return nil
		}
		base = model
	}

	name := sanitiseName(base)
	if name == "" {
		name = "printer"
	}

	// Collision resolution against the live local queue list.
	d.view.Refresh(ctx)
	if _, taken := d.view.byURI(uri); taken {
		if d.lookupEntry(name, host) == nil && d.lookupByURI(uri) == nil {
			// Another instance or a prior session owns this device already.
			DebugCtx("device URI already served by an existing queue", "uri", uri)
			return nil
		}
	}
	if q, ok := d.view.byName(name); ok && !q.DaemonOwned {
		fallback := name + "@" + host
		if q2, ok := d.view.byName(fallback); ok && !q2.DaemonOwned {
			WarnCtx("queue name and fallback both taken by local queues",
				"name", name, "fallback", fallback)
			return nil
		}
		name = fallback
	}

	if e := d.lookupEntry(name, host); e != nil {
		d.updateEntry(e, ad, uri, host, name, pdls, model)
		return e
	}

	e := d.constructEntry(ad, uri, host, name, sharedQueue, pdls, model)
	d.insertEntry(e)
	d.scheduleReconcile()
	InfoCtx("new remote printer", "name", e.Name, "uri", e.URI, "duplicate", e.Duplicate)
	return e
}

// updateEntry refreshes an existing catalogue entry from a rediscovery.
func (d *Daemon) updateEntry(e *Entry, ad Advertisement, uri, host, name string, pdls []string, model string) {
	upgrade := strings.HasPrefix(e.URI, "ipp:") && strings.HasPrefix(uri, "ipps:")
	changed := !strings.EqualFold(uriTail(e.URI), uriTail(uri))

	if upgrade || changed {
		e.URI = uri
		e.Host = host
		e.ServiceName = ad.ServiceName
		e.ServiceType = ad.ServiceType
		e.ServiceDomain = ad.ServiceDomain
		if len(pdls) > 0 {
			e.PDLs = pdls
		}
		if model != "" {
			e.MakeModel = model
		}
		e.Status = StatusToBeCreated
		e.Deadline = d.now()
		d.scheduleReconcile()
		InfoCtx("remote printer moved", "name", e.Name, "uri", e.URI)
		return
	}

	if e.Status == StatusUnconfirmed || e.Status == StatusDisappeared {
		e.Status = StatusConfirmed
		e.Deadline = noDeadline
		DebugCtx("remote printer confirmed", "name", e.Name)
	}
	// Backfill identity on entries recovered without one.
	if e.ServiceName == "" {
		e.ServiceName = ad.ServiceName
	}
	if e.ServiceType == "" {
		e.ServiceType = ad.ServiceType
	}
	if e.ServiceDomain == "" {
		e.ServiceDomain = ad.ServiceDomain
	}
	if e.Host == "" {
		e.Host = host
	}
}

// constructEntry builds a new catalogue entry for an advertisement.
// Shared-queue names may collide across servers; the newcomer becomes a
// standby duplicate unless the incumbent is already on the way out, in
// which case the roles swap.
func (d *Daemon) constructEntry(ad Advertisement, uri, host, name string, sharedQueue bool, pdls []string, model string) *Entry {
	e := &Entry{
		Name:          name,
		URI:           uri,
		Host:          host,
		ServiceName:   ad.ServiceName,
		ServiceType:   ad.ServiceType,
		ServiceDomain: ad.ServiceDomain,
		Status:        StatusToBeCreated,
		Deadline:      d.now(),
		PDLs:          pdls,
		MakeModel:     model,
		Location:      ad.Location,
		Info:          ad.Info,
	}
	if sharedQueue {
		e.DescSource = DescriptionRaw
		if other := d.namesake(e, false); other != nil {
			if other.Status == StatusDisappeared || other.Status == StatusUnconfirmed {
				other.Duplicate = true
				other.Deadline = noDeadline
			} else {
				e.Duplicate = true
				e.Deadline = noDeadline
			}
		}
	} else {
		// Resolved to a PPD or an interface script when the queue is
		// first created; generating it needs an RPC to the printer, which
		// only timer callbacks may perform.
		e.DescSource = DescriptionPPDFile
	}
	return e
}
