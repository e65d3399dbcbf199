package browse

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"printbrowsed/cups"
)

// BrowsePacket is one parsed legacy browse datagram.
type BrowsePacket struct {
	Type     int
	State    int
	URI      string
	Location string
	Info     string
}

// parseBrowsePacket decodes the legacy "%x %x %s ["location"] ["info"]"
// payload. The first three fields are mandatory; the quoted fields are
// best-effort. Every access is bounds-checked so an arbitrary datagram can
// never take the listener down.
func parseBrowsePacket(payload []byte) (*BrowsePacket, error) {
	s := strings.TrimRight(string(payload), "\r\n\x00")

	next := func() string {
		s = strings.TrimLeft(s, " \t")
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			tok := s
			s = ""
			return tok
		}
		tok := s[:i]
		s = s[i:]
		return tok
	}

	typeTok := next()
	stateTok := next()
	uri := next()
	if typeTok == "" || stateTok == "" || uri == "" {
		return nil, fmt.Errorf("browse packet too short")
	}

	ptype, err := strconv.ParseUint(strings.TrimPrefix(typeTok, "0x"), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("bad printer type %q", typeTok)
	}
	state, err := strconv.ParseUint(strings.TrimPrefix(stateTok, "0x"), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("bad printer state %q", stateTok)
	}

	p := &BrowsePacket{
		Type:  int(ptype),
		State: int(state),
		URI:   uri,
	}

	// Optional quoted location and info. An unterminated quote swallows
	// the remainder; anything after the second quoted field is treated as
	// options and ignored here.
	quoted := func() (string, bool) {
		s = strings.TrimLeft(s, " \t")
		if len(s) == 0 || s[0] != '"' {
			return "", false
		}
		rest := s[1:]
		i := strings.IndexByte(rest, '"')
		if i < 0 {
			s = ""
			return rest, true
		}
		s = rest[i+1:]
		return rest[:i], true
	}
	if loc, ok := quoted(); ok {
		p.Location = loc
		if info, ok := quoted(); ok {
			p.Info = info
		}
	}
	return p, nil
}

// listener receives legacy browse packets on the browse port.
type listener struct {
	conn net.PacketConn
}

// startListener binds the browse port on all addresses with broadcast
// receive enabled and feeds validated packets into the daemon loop.
func (d *Daemon) startListener() error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if serr == nil {
					serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
				}
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	conn, err := lc.ListenPacket(context.Background(),
		"udp4", fmt.Sprintf(":%d", d.opts.BrowsePort))
	if err != nil {
		return fmt.Errorf("bind browse port %d: %w", d.opts.BrowsePort, err)
	}
	d.listener = &listener{conn: conn}

	go d.listenLoop(conn)
	InfoCtx("listening for browse packets", "port", d.opts.BrowsePort)
	return nil
}

// listenLoop reads datagrams until the socket is closed. Malformed or
// disallowed packets are dropped one at a time; the watch itself survives
// anything a sender can put on the wire.
func (d *Daemon) listenLoop(conn net.PacketConn) {
	buf := make([]byte, 4096)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if !d.closed() {
				WarnCtx("browse socket read error", "err", err)
			}
			return
		}

		var srcIP net.IP
		if ua, ok := src.(*net.UDPAddr); ok {
			srcIP = ua.IP
		}
		if !d.opts.Allow.Allowed(srcIP) {
			DebugCtx("browse packet from disallowed address", "src", src.String())
			continue
		}

		pkt, err := parseBrowsePacket(buf[:n])
		if err != nil {
			DebugCtx("dropping malformed browse packet", "src", src.String(), "err", err)
			continue
		}
		if pkt.Type&cups.PrinterDelete != 0 {
			// Deletion over broadcast is handled by timeout, not by the
			// advertisement itself.
			continue
		}

		d.post(func() {
			d.foundRemoteQueue(context.Background(), pkt.URI, pkt.Location, pkt.Info)
		})
	}
}

// foundRemoteQueue funnels a URI-shaped discovery (legacy broadcast or
// poll result) into intake and stamps the returned entry with the
// browse-packet lifecycle: it must be re-asserted before the browse
// timeout or the queue is retired.
func (d *Daemon) foundRemoteQueue(ctx context.Context, uri, location, info string) {
	scheme, host, port, resource, err := cups.SplitURI(uri)
	if err != nil {
		DebugCtx("unparsable advertised URI", "uri", uri, "err", err)
		return
	}

	e := d.intake(ctx, Advertisement{
		Host:     host,
		Port:     port,
		Resource: resource,
		Secure:   scheme == "ipps",
		Location: location,
		Info:     info,
	})
	if e == nil || e.Duplicate {
		return
	}
	if e.ServiceDomain != "" {
		// DNS-SD owns this entry; its lifecycle is driven by REMOVE events.
		return
	}
	if e.Status == StatusToBeCreated {
		// Newly constructed or moved; creation is already scheduled.
		return
	}
	e.Status = StatusBrowsePacket
	e.Deadline = d.now().Add(d.opts.BrowseTimeout)
	d.scheduleReconcile()
}
