package browse

import "time"

// AutoShutdownMode selects when the daemon shuts itself down.
type AutoShutdownMode int

const (
	// AutoShutdownOff keeps the daemon running regardless of catalogue state.
	AutoShutdownOff AutoShutdownMode = iota
	// AutoShutdownOn exits after AutoShutdownTimeout once the catalogue is empty.
	AutoShutdownOn
	// AutoShutdownAvahi ties the auto-shutdown switch to availability of the
	// service-discovery layer: on while it is gone, off while it is present.
	AutoShutdownAvahi
)

// PollServer is one configured BrowsePoll upstream.
type PollServer struct {
	Host string
	Port int
	// Major/Minor pin the IPP version for this upstream; zero means unset.
	Major int
	Minor int
}

// Options is the configuration record the daemon core consumes. It is
// produced by the config-file/flag layer in the main package.
type Options struct {
	// Discovery directions.
	BrowseRemoteDNSSD bool // watch DNS-SD for remote printers
	BrowseRemoteCUPS  bool // listen for legacy UDP browse packets
	BrowseLocalCUPS   bool // broadcast local shared queues

	BrowsePoll []PollServer
	Allow      AllowList

	// DomainSocket is the preferred local print service endpoint.
	DomainSocket string

	// CreateIPPPrinterQueues enables queues for direct network printers
	// even when no usable PDL is advertised.
	CreateIPPPrinterQueues bool

	AutoShutdown        AutoShutdownMode
	AutoShutdownTimeout time.Duration

	BrowsePort     int
	BrowseInterval time.Duration
	BrowseTimeout  time.Duration

	// IPPFilterPath is the filter binary interface scripts invoke for
	// direct printers without a synthesised description.
	IPPFilterPath string
}

// Defaults used when the configuration leaves a knob unset.
const (
	DefaultBrowsePort          = 631
	DefaultBrowseInterval      = 60 * time.Second
	DefaultBrowseTimeout       = 300 * time.Second
	DefaultAutoShutdownTimeout = 30 * time.Second
	DefaultIPPFilterPath       = "/usr/lib/cups/filter/sys5ippprinter"
)

// DefaultOptions returns the configuration the daemon runs with when no
// config file is present: watch DNS-SD and legacy broadcasts, share nothing.
func DefaultOptions() Options {
	return Options{
		BrowseRemoteDNSSD:   true,
		BrowseRemoteCUPS:    true,
		BrowsePort:          DefaultBrowsePort,
		BrowseInterval:      DefaultBrowseInterval,
		BrowseTimeout:       DefaultBrowseTimeout,
		AutoShutdownTimeout: DefaultAutoShutdownTimeout,
		IPPFilterPath:       DefaultIPPFilterPath,
	}
}

// normalize fills unset fields with defaults.
func (o *Options) normalize() {
	if o.BrowsePort == 0 {
		o.BrowsePort = DefaultBrowsePort
	}
	if o.BrowseInterval == 0 {
		o.BrowseInterval = DefaultBrowseInterval
	}
	if o.BrowseTimeout == 0 {
		o.BrowseTimeout = DefaultBrowseTimeout
	}
	if o.AutoShutdownTimeout == 0 {
		o.AutoShutdownTimeout = DefaultAutoShutdownTimeout
	}
	if o.IPPFilterPath == "" {
		o.IPPFilterPath = DefaultIPPFilterPath
	}
}
