package browse

import (
	"context"
	"fmt"
	"net"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"printbrowsed/cups"
)

// BrowseData is one queue's outgoing advertisement.
type BrowseData struct {
	Type         int
	State        int
	URI          string
	Location     string
	Info         string
	MakeModel    string
	ExtraOptions string
}

// maxBrowsePacket bounds the payload; oversize packets are dropped whole
// rather than truncated into something another daemon would misparse.
const maxBrowsePacket = 1460

// render produces the wire payload, substituting the interface address for
// localhost so receivers on that network can reach the queue.
func (bd BrowseData) render(ifaceAddr string, leaseSeconds int) string {
	uri := bd.URI
	if ifaceAddr != "" {
		uri = strings.Replace(uri, "//localhost", "//"+ifaceAddr, 1)
		uri = strings.Replace(uri, "//127.0.0.1", "//"+ifaceAddr, 1)
	}
	s := fmt.Sprintf("%x %x %s \"%s\" \"%s\" \"%s\" lease-duration=%d",
		bd.Type, bd.State, uri, bd.Location, bd.Info, bd.MakeModel, leaseSeconds)
	if bd.ExtraOptions != "" {
		s += " " + bd.ExtraOptions
	}
	return s + "\n"
}

// startBroadcaster arms the periodic legacy-broadcast cycle.
func (d *Daemon) startBroadcaster() {
	d.broadcastTimer = d.schedule(0, d.broadcastCycle)
}

// broadcastCycle advertises every locally shared queue on every
// broadcast-capable interface, then reschedules itself.
func (d *Daemon) broadcastCycle() {
	d.ifaces.Refresh()

	data := d.collectBrowseData(context.Background())
	ifaces := d.ifaces.Interfaces()

	if len(data) > 0 && len(ifaces) > 0 {
		lease := int(d.opts.BrowseTimeout.Seconds())
		for _, bd := range data {
			for _, ifc := range ifaces {
				payload := bd.render(ifc.AddressText, lease)
				if len(payload) > maxBrowsePacket {
					WarnCtx("dropping oversize browse packet", "uri", bd.URI, "size", len(payload))
					continue
				}
				if err := sendBroadcast(ifc.Broadcast, []byte(payload)); err != nil {
					WarnCtx("browse packet send failed",
						"dest", ifc.Broadcast.String(), "err", err)
				}
			}
		}
	}

	d.broadcastTimer = d.schedule(d.opts.BrowseInterval, d.broadcastCycle)
}

// collectBrowseData renders the local shared queues into advertisements.
func (d *Daemon) collectBrowseData(ctx context.Context) []BrowseData {
	printers, err := d.local.Printers(ctx)
	if err != nil {
		WarnCtx("could not enumerate queues for broadcast", "err", err)
		return nil
	}
	var data []BrowseData
	for _, p := range printers {
		if !p.Shared || p.Type&cups.PrinterNotShared != 0 {
			continue
		}
		uri := p.URI
		if uri == "" {
			uri = "ipp://localhost/printers/" + p.Name
		}
		data = append(data, BrowseData{
			Type:      p.Type,
			State:     p.State,
			URI:       uri,
			Location:  p.Location,
			Info:      p.Info,
			MakeModel: p.MakeModel,
		})
	}
	return data
}

// sendBroadcast writes one datagram to a broadcast address. The socket is
// per-send; the listener owns the long-lived browse-port socket.
var sendBroadcast = func(dest *net.UDPAddr, payload []byte) error {
	dialer := net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	conn, err := dialer.Dial("udp4", dest.String())
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}
