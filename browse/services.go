package browse

import (
	"context"

	"github.com/OpenPrinting/goipp"

	"printbrowsed/cups"
)

// LocalService is the slice of the local print service the daemon drives.
// *cups.Client implements it; tests substitute a fake.
type LocalService interface {
	Printers(ctx context.Context) ([]cups.Printer, error)
	DefaultPrinter(ctx context.Context) (string, error)
	ActiveJobs(ctx context.Context, queue string) (int, error)
	AddModifyPrinter(ctx context.Context, q cups.QueueUpdate) error
	DeletePrinter(ctx context.Context, name string) error
	CreateSubscription(ctx context.Context, events []string, leaseSeconds int) (int, error)
	Notifications(ctx context.Context, subID, sinceSeq int) ([]cups.Event, error)
	CancelSubscription(ctx context.Context, subID int) error
}

// RemoteService is what a poll worker needs from an upstream print service.
type RemoteService interface {
	SharedPrinters(ctx context.Context) ([]cups.Printer, error)
	CreateSubscription(ctx context.Context, events []string, leaseSeconds int) (int, error)
	Notifications(ctx context.Context, subID, sinceSeq int) ([]cups.Event, error)
	CancelSubscription(ctx context.Context, subID int) error
}

// AttributeFetcher resolves the IPP attributes of a printer URI. Used when
// synthesising queue descriptions for direct network printers.
type AttributeFetcher func(ctx context.Context, uri string) (goipp.Attributes, error)

// fetchPrinterAttributes dials the printer behind uri and asks for its
// attribute set.
func fetchPrinterAttributes(ctx context.Context, uri string) (goipp.Attributes, error) {
	c, err := cups.NewForURI(uri)
	if err != nil {
		return nil, err
	}
	return c.PrinterAttributes(ctx, uri)
}
