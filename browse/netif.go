package browse

import (
	"net"
	"time"
)

// NetInterface is one broadcast-capable interface address.
type NetInterface struct {
	// AddressText is the interface address in textual form, used for
	// substituting "localhost" in advertised URIs.
	AddressText string
	// Broadcast is the destination for outgoing browse packets.
	Broadcast *net.UDPAddr
}

// interfacesFunc is swapped out by tests.
var interfacesFunc = net.Interfaces

// ifaceTracker maintains the ordered set of broadcast-capable interfaces.
type ifaceTracker struct {
	port int
	list []NetInterface

	// Network-change notifications within the debounce window coalesce
	// into a single refresh.
	debounce *Timer
}

const ifaceDebounce = 10 * time.Second

func newIfaceTracker(port int) *ifaceTracker {
	return &ifaceTracker{port: port}
}

// Refresh replaces the interface set from the OS view. Interfaces qualify
// when they have the broadcast flag, are not loopback, and carry an
// IPv4 address with a broadcast address. IPv6 link-local addresses are
// skipped; IPv6 has no broadcast addresses at all.
func (t *ifaceTracker) Refresh() {
	ifaces, err := interfacesFunc()
	if err != nil {
		WarnCtx("could not enumerate network interfaces", "err", err)
		return
	}

	var list []NetInterface
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || ifc.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP == nil {
				continue
			}
			if ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			bcast := make(net.IP, net.IPv4len)
			for i := 0; i < net.IPv4len; i++ {
				bcast[i] = ip4[i] | ^mask[i]
			}
			list = append(list, NetInterface{
				AddressText: ip4.String(),
				Broadcast:   &net.UDPAddr{IP: bcast, Port: t.port},
			})
		}
	}
	t.list = list
}

// Interfaces returns the current set.
func (t *ifaceTracker) Interfaces() []NetInterface {
	return t.list
}

// notifyChange requests a refresh on behalf of a host network-change
// notification. Must be invoked on the daemon loop; d.PostNetChange is the
// entry point for outside callers.
func (t *ifaceTracker) notifyChange(d *Daemon) {
	if t.debounce != nil {
		return
	}
	t.debounce = d.schedule(ifaceDebounce, func() {
		t.debounce = nil
		t.Refresh()
	})
}

// PostNetChange forwards a host network-change notification into the loop.
func (d *Daemon) PostNetChange() {
	d.post(func() {
		d.ifaces.notifyChange(d)
	})
}
