package browse

import (
	"context"
	"testing"
)

func TestSanitiseName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"hplj", "hplj"},
		{"HP LaserJet 4", "HP-LaserJet-4"},
		{"  office (2nd floor) ", "office-2nd-floor"},
		{"__x__", "__x__"},
		{"---", ""},
		{"ab//cd", "ab-cd"},
		{"träger", "tr-ger"},
	}
	for _, tc := range cases {
		if got := sanitiseName(tc.in); got != tc.want {
			t.Errorf("sanitiseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
		// Idempotence: sanitising twice changes nothing.
		if got := sanitiseName(sanitiseName(tc.in)); got != tc.want {
			t.Errorf("sanitiseName not idempotent for %q: %q", tc.in, got)
		}
	}
}

func TestSanitisePDL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"application/pdf", "application/pdf"},
		{"image/pwg-raster", "image/pwg-raster"},
		{"a b,c", "a-b,c"},
	}
	for _, tc := range cases {
		if got := sanitisePDL(tc.in); got != tc.want {
			t.Errorf("sanitisePDL(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if got := sanitisePDL(sanitisePDL(tc.in)); got != tc.want {
			t.Errorf("sanitisePDL not idempotent for %q: %q", tc.in, got)
		}
	}
}

func TestSanitiseHost(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"printer.local", "printer"},
		{"printer.local.", "printer"},
		{"printer.example.com", "printer.example.com"},
		{"printer", "printer"},
	}
	for _, tc := range cases {
		if got := sanitiseHost(tc.in); got != tc.want {
			t.Errorf("sanitiseHost(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIntakeSharedQueue(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)

	e := d.intake(context.Background(), dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if e == nil {
		t.Fatal("expected catalogue entry")
	}
	if e.Name != "hplj" {
		t.Errorf("name = %q, want hplj", e.Name)
	}
	if e.URI != "ipp://printer.local:631/printers/hplj" {
		t.Errorf("uri = %q", e.URI)
	}
	if e.Host != "printer" {
		t.Errorf("host = %q, want printer", e.Host)
	}
	if e.Status != StatusToBeCreated {
		t.Errorf("status = %v, want to-be-created", e.Status)
	}
	if e.Deadline.IsZero() {
		t.Error("new entry must have an action scheduled")
	}
	if e.ServiceName != "HPLJ" || e.ServiceType != "_ipp._tcp" || e.ServiceDomain != "local" {
		t.Errorf("service identity not recorded: %+v", e)
	}
}

func TestIntakeIdempotent(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)

	ad := dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	})
	first := d.intake(context.Background(), ad)
	second := d.intake(context.Background(), ad)

	if first == nil || second == nil {
		t.Fatal("expected entries")
	}
	if first != second {
		t.Error("same advertisement twice must yield a single entry")
	}
	if len(d.catalogue) != 1 {
		t.Errorf("catalogue has %d entries, want 1", len(d.catalogue))
	}
}

func TestIntakeRawQueueRejected(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)

	e := d.intake(context.Background(), dnssdAd("RAWQ", "printer.local", map[string]string{
		"rp": "printers/rawq",
	}))
	if e != nil {
		t.Fatal("raw remote queue must be rejected")
	}
	if len(d.catalogue) != 0 {
		t.Error("catalogue must stay empty")
	}
	if svc.calls != 0 {
		t.Errorf("no print service RPC expected, saw %d", svc.calls)
	}
}

func TestIntakeNameCollisionFallsBackToHostSuffix(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.addPrinter(cupsPrinter("hplj", "usb://legacy", false))
	d, _ := newTestDaemon(DefaultOptions(), svc)

	e := d.intake(context.Background(), dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if e == nil {
		t.Fatal("expected catalogue entry")
	}
	if e.Name != "hplj@printer" {
		t.Errorf("name = %q, want hplj@printer", e.Name)
	}
}

func TestIntakeBothNamesTakenRejects(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.addPrinter(cupsPrinter("hplj", "usb://legacy", false))
	svc.addPrinter(cupsPrinter("hplj@printer", "usb://legacy2", false))
	d, _ := newTestDaemon(DefaultOptions(), svc)

	e := d.intake(context.Background(), dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if e != nil {
		t.Fatal("expected rejection when name and fallback are both taken")
	}
}

func TestIntakeURIAlreadyServedIsNoop(t *testing.T) {
	t.Parallel()

	uri := "ipp://printer.local:631/printers/hplj"
	svc := newFakeService()
	svc.addPrinter(cupsPrinter("elsewhere", uri, false))
	d, _ := newTestDaemon(DefaultOptions(), svc)

	e := d.intake(context.Background(), dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if e != nil {
		t.Fatal("expected no-op when the device URI is already served")
	}
	if len(d.catalogue) != 0 {
		t.Error("catalogue must stay empty")
	}
}

func TestIntakeSchemeUpgrade(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)
	ctx := context.Background()

	e := d.intake(ctx, dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if e == nil {
		t.Fatal("expected entry")
	}
	e.Status = StatusConfirmed
	e.Deadline = noDeadline

	secure := dnssdAd("HPLJ", "printer.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	})
	secure.ServiceType = "_ipps._tcp"
	upgraded := d.intake(ctx, secure)

	if upgraded != e {
		t.Fatal("upgrade must reuse the entry")
	}
	if e.URI != "ipps://printer.local:631/printers/hplj" {
		t.Errorf("uri = %q, want ipps scheme", e.URI)
	}
	if e.Status != StatusToBeCreated {
		t.Errorf("status = %v, want to-be-created after reassignment", e.Status)
	}
}

func TestIntakeDirectPrinterNeedsUsablePDL(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)
	ctx := context.Background()

	// Unknown PDLs only, queues not forced on: reject.
	if e := d.intake(ctx, dnssdAd("Weird", "printer.local", map[string]string{
		"ty":  "Weird Printer 9000",
		"pdl": "application/octet-stream",
	})); e != nil {
		t.Fatal("printer with only unknown PDLs must be rejected")
	}

	// A usable PDL makes it eligible.
	e := d.intake(ctx, dnssdAd("Laser", "printer.local", map[string]string{
		"ty":  "ACME Laser 2",
		"pdl": "application/octet-stream,application/pdf",
	}))
	if e == nil {
		t.Fatal("printer with usable PDL must be accepted")
	}
	if e.Name != "ACME-Laser-2" {
		t.Errorf("name = %q", e.Name)
	}
	if len(e.PDLs) != 2 {
		t.Errorf("pdls = %v", e.PDLs)
	}
}

func TestIntakeDirectPrinterForcedOn(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.CreateIPPPrinterQueues = true
	svc := newFakeService()
	d, _ := newTestDaemon(opts, svc)

	e := d.intake(context.Background(), dnssdAd("Weird", "printer.local", map[string]string{
		"usb_MDL": "Weird 9000",
		"pdl":     "application/octet-stream",
	}))
	if e == nil {
		t.Fatal("CreateIPPPrinterQueues must admit printers without usable PDLs")
	}
	if e.Name != "Weird-9000" {
		t.Errorf("name = %q", e.Name)
	}
}

func TestIntakeDuplicateForSameNameOtherHost(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	d, _ := newTestDaemon(DefaultOptions(), svc)
	ctx := context.Background()

	a := d.intake(ctx, dnssdAd("HPLJ A", "server-a.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	b := d.intake(ctx, dnssdAd("HPLJ B", "server-b.local", map[string]string{
		"rp":      "printers/hplj",
		"product": "(HP LaserJet)",
	}))
	if a == nil || b == nil {
		t.Fatal("expected two entries")
	}
	if a.Duplicate {
		t.Error("first entry must be the owner")
	}
	if !b.Duplicate {
		t.Error("second entry must be a standby duplicate")
	}
	if !b.Deadline.IsZero() {
		t.Error("duplicates are steady state, no deadline")
	}
}

func TestTXTModelPreference(t *testing.T) {
	t.Parallel()

	if got := txtModel(map[string]string{"ty": "A", "usb_MDL": "B", "product": "(C)"}); got != "A" {
		t.Errorf("ty must win, got %q", got)
	}
	if got := txtModel(map[string]string{"usb_MDL": "B", "product": "(C)"}); got != "B" {
		t.Errorf("usb_MDL second, got %q", got)
	}
	if got := txtModel(map[string]string{"product": "(C)"}); got != "C" {
		t.Errorf("product parens stripped, got %q", got)
	}
}
