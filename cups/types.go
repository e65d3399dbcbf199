package cups

// Printer type bits as used in printer-type / printer-type-mask.
const (
	PrinterClass      = 0x0001
	PrinterRemote     = 0x0002
	PrinterBW         = 0x0004
	PrinterColor      = 0x0008
	PrinterDuplex     = 0x0010
	PrinterStaple     = 0x0020
	PrinterCopies     = 0x0040
	PrinterCollate    = 0x0080
	PrinterPunch      = 0x0100
	PrinterCover      = 0x0200
	PrinterBind       = 0x0400
	PrinterSort       = 0x0800
	PrinterSmall      = 0x1000
	PrinterMedium     = 0x2000
	PrinterLarge      = 0x4000
	PrinterVariable   = 0x8000
	PrinterImplicit   = 0x10000
	PrinterDefault    = 0x20000
	PrinterFax        = 0x40000
	PrinterRejecting  = 0x80000
	PrinterDelete     = 0x100000
	PrinterNotShared  = 0x200000
	PrinterAuth       = 0x400000
	PrinterCommands   = 0x800000
	PrinterDiscovered = 0x1000000
)

// Printer states (printer-state enum).
const (
	StateIdle       = 3
	StateProcessing = 4
	StateStopped    = 5
)

// BrowsedMark is the option-name prefix stamped on every queue this daemon
// creates. A queue carrying "<BrowsedMark>-default=true" is daemon owned;
// anything else belongs to the user or another tool and is never deleted.
const BrowsedMark = "printbrowsed"

// OwnerOption is the full sentinel option name.
const OwnerOption = BrowsedMark + "-default"

// Printer is one queue as reported by a print service.
type Printer struct {
	Name        string
	URI         string // printer-uri-supported
	DeviceURI   string
	Info        string
	Location    string
	MakeModel   string
	Type        int
	State       int
	Shared      bool
	DaemonOwned bool // sentinel option present and true
}

// Event is one notification from an event subscription.
type Event struct {
	SequenceNumber int
	Name           string // notify-subscribed-event
}

// QueueUpdate carries everything CUPS-Add-Modify-Printer needs for one queue.
type QueueUpdate struct {
	Name      string
	DeviceURI string
	Info      string
	Location  string
	// Options are stored verbatim as printer attributes (name=value).
	Options map[string]string
	// PPDPath, when non-empty, is sent as the request document. The same
	// mechanism carries interface scripts.
	PPDPath string
}
