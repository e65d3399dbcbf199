package cups

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/OpenPrinting/goipp"
)

var printerRequestedAttributes = []string{
	"printer-name",
	"printer-uri-supported",
	"device-uri",
	"printer-info",
	"printer-location",
	"printer-make-and-model",
	"printer-type",
	"printer-state",
	"printer-is-shared",
	OwnerOption,
}

func localPrinterURI(name string) string {
	return "ipp://localhost/printers/" + name
}

func requestedAttributes(names []string) goipp.Attribute {
	a := goipp.Attribute{Name: "requested-attributes"}
	for _, n := range names {
		a.Values.Add(goipp.TagKeyword, goipp.String(n))
	}
	return a
}

// Printers enumerates every queue defined on the service.
func (c *Client) Printers(ctx context.Context) ([]Printer, error) {
	m := c.newRequest(goipp.OpCupsGetPrinters, "")
	m.Operation.Add(requestedAttributes(printerRequestedAttributes))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No queues defined at all.
			return nil, nil
		}
		return nil, err
	}

	var printers []Printer
	for _, attrs := range groupsWithTag(rsp, goipp.TagPrinterGroup) {
		p := printerFromGroup(attrs)
		if p.Name != "" {
			printers = append(printers, p)
		}
	}
	return printers, nil
}

// SharedPrinters enumerates queues excluding remote, implicit and
// not-shared entries. Poll workers run this against upstream servers.
func (c *Client) SharedPrinters(ctx context.Context) ([]Printer, error) {
	m := c.newRequest(goipp.OpCupsGetPrinters, "")
	m.Operation.Add(goipp.MakeAttribute("printer-type",
		goipp.TagEnum, goipp.Integer(0)))
	m.Operation.Add(goipp.MakeAttribute("printer-type-mask",
		goipp.TagEnum, goipp.Integer(PrinterRemote|PrinterImplicit|PrinterNotShared)))
	m.Operation.Add(requestedAttributes([]string{
		"printer-name", "printer-uri-supported", "printer-info",
	}))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var printers []Printer
	for _, attrs := range groupsWithTag(rsp, goipp.TagPrinterGroup) {
		p := printerFromGroup(attrs)
		if p.Name != "" {
			printers = append(printers, p)
		}
	}
	return printers, nil
}

// DefaultPrinter returns the name of the system default queue, or "" when
// none is set.
func (c *Client) DefaultPrinter(ctx context.Context) (string, error) {
	m := c.newRequest(goipp.OpCupsGetDefault, "")
	m.Operation.Add(requestedAttributes([]string{"printer-name"}))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	name, _ := attrString(rsp.Printer, "printer-name")
	return name, nil
}

// ActiveJobs counts the not-completed jobs queued on a printer.
func (c *Client) ActiveJobs(ctx context.Context, queue string) (int, error) {
	m := c.newRequest(goipp.OpGetJobs, localPrinterURI(queue))
	m.Operation.Add(goipp.MakeAttribute("which-jobs",
		goipp.TagKeyword, goipp.String("not-completed")))
	m.Operation.Add(requestedAttributes([]string{"job-id"}))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		return 0, err
	}
	return len(groupsWithTag(rsp, goipp.TagJobGroup)), nil
}

// AddModifyPrinter creates or updates a queue. When q.PPDPath is set the
// file rides along as the request document (PPD or interface script).
func (c *Client) AddModifyPrinter(ctx context.Context, q QueueUpdate) error {
	m := c.newRequest(goipp.OpCupsAddModifyPrinter, localPrinterURI(q.Name))
	m.Printer.Add(goipp.MakeAttribute("device-uri",
		goipp.TagURI, goipp.String(q.DeviceURI)))
	m.Printer.Add(goipp.MakeAttribute("printer-state",
		goipp.TagEnum, goipp.Integer(StateIdle)))
	m.Printer.Add(goipp.MakeAttribute("printer-is-accepting-jobs",
		goipp.TagBoolean, goipp.Boolean(true)))
	m.Printer.Add(goipp.MakeAttribute("printer-is-shared",
		goipp.TagBoolean, goipp.Boolean(false)))
	if q.Info != "" {
		m.Printer.Add(goipp.MakeAttribute("printer-info",
			goipp.TagText, goipp.String(q.Info)))
	}
	if q.Location != "" {
		m.Printer.Add(goipp.MakeAttribute("printer-location",
			goipp.TagText, goipp.String(q.Location)))
	}
	for name, value := range q.Options {
		m.Printer.Add(goipp.MakeAttribute(name,
			goipp.TagName, goipp.String(value)))
	}

	var doc *os.File
	if q.PPDPath != "" {
		f, err := os.Open(q.PPDPath)
		if err != nil {
			return fmt.Errorf("cups: open queue document: %w", err)
		}
		defer f.Close()
		doc = f
	}

	if doc != nil {
		_, err := c.do(ctx, m, "/admin/", doc)
		return err
	}
	_, err := c.do(ctx, m, "/admin/", nil)
	return err
}

// DeletePrinter removes a queue. Deleting a queue that is already gone is
// not an error.
func (c *Client) DeletePrinter(ctx context.Context, name string) error {
	m := c.newRequest(goipp.OpCupsDeletePrinter, localPrinterURI(name))
	_, err := c.do(ctx, m, "/admin/", nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PrinterAttributes fetches the full attribute set of the printer behind
// an ipp/ipps URI. Used to synthesise queue descriptions for direct
// network printers.
func (c *Client) PrinterAttributes(ctx context.Context, uri string) (goipp.Attributes, error) {
	_, _, _, resource, err := SplitURI(uri)
	if err != nil {
		return nil, err
	}
	m := c.newRequest(goipp.OpGetPrinterAttributes, uri)
	m.Operation.Add(requestedAttributes([]string{"all"}))

	rsp, err := c.do(ctx, m, resource, nil)
	if err != nil {
		return nil, err
	}
	return rsp.Printer, nil
}

// CreateSubscription registers a pull (ippget) event subscription on the
// service and returns its id.
func (c *Client) CreateSubscription(ctx context.Context, events []string, leaseSeconds int) (int, error) {
	m := c.newRequest(goipp.OpCreatePrinterSubscriptions, c.rootURI())

	eventsAttr := goipp.Attribute{Name: "notify-events"}
	for _, e := range events {
		eventsAttr.Values.Add(goipp.TagKeyword, goipp.String(e))
	}
	m.Subscription.Add(eventsAttr)
	m.Subscription.Add(goipp.MakeAttribute("notify-pull-method",
		goipp.TagKeyword, goipp.String("ippget")))
	m.Subscription.Add(goipp.MakeAttribute("notify-lease-duration",
		goipp.TagInteger, goipp.Integer(leaseSeconds)))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		return -1, err
	}

	if id, ok := attrInt(rsp.Subscription, "notify-subscription-id"); ok {
		return id, nil
	}
	for _, attrs := range groupsWithTag(rsp, goipp.TagSubscriptionGroup) {
		if id, ok := attrInt(attrs, "notify-subscription-id"); ok {
			return id, nil
		}
	}
	return -1, fmt.Errorf("cups: no notify-subscription-id in response")
}

// Notifications pulls the events of a subscription whose sequence number
// is sinceSeq or higher.
func (c *Client) Notifications(ctx context.Context, subID, sinceSeq int) ([]Event, error) {
	m := c.newRequest(goipp.OpGetNotifications, c.rootURI())
	m.Operation.Add(goipp.MakeAttribute("notify-subscription-ids",
		goipp.TagInteger, goipp.Integer(subID)))
	m.Operation.Add(goipp.MakeAttribute("notify-sequence-numbers",
		goipp.TagInteger, goipp.Integer(sinceSeq)))

	rsp, err := c.do(ctx, m, "/", nil)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, attrs := range groupsWithTag(rsp, goipp.TagEventNotificationGroup) {
		var ev Event
		ev.SequenceNumber, _ = attrInt(attrs, "notify-sequence-number")
		ev.Name, _ = attrString(attrs, "notify-subscribed-event")
		if ev.Name != "" || ev.SequenceNumber != 0 {
			events = append(events, ev)
		}
	}
	return events, nil
}

// CancelSubscription tears a subscription down. A missing subscription is
// treated as already cancelled.
func (c *Client) CancelSubscription(ctx context.Context, subID int) error {
	m := c.newRequest(goipp.OpCancelSubscription, c.rootURI())
	m.Operation.Add(goipp.MakeAttribute("notify-subscription-id",
		goipp.TagInteger, goipp.Integer(subID)))
	_, err := c.do(ctx, m, "/", nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) rootURI() string {
	return fmt.Sprintf("ipp://%s:%d/", c.host, c.port)
}
