// Package cups is a small IPP client for the local CUPS service and for
// remote IPP print services, covering only the operations the browse daemon
// drives: queue CRUD, job counting, default-printer lookup, and event
// subscriptions.
package cups

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OpenPrinting/goipp"
)

// ErrNotFound is returned when the service answers with an IPP
// client-error-not-found status. Callers branch on it for expired
// subscription leases and already-deleted queues.
var ErrNotFound = errors.New("cups: not found")

// Client talks IPP over HTTP to one print service.
type Client struct {
	host    string
	port    int
	socket  string // unix domain socket path; overrides host/port when set
	tls     bool
	version goipp.Version

	httpc     *http.Client
	requestID uint32
}

// connectTimeout bounds dialing so a dead upstream cannot stall the caller.
const connectTimeout = 4 * time.Second

// New returns a client for a TCP endpoint.
func New(host string, port int) *Client {
	c := &Client{
		host:    host,
		port:    port,
		version: goipp.MakeVersion(2, 0),
	}
	c.httpc = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSClientConfig: &tls.Config{
				// Printers and private CUPS instances almost always carry
				// self-signed certificates.
				InsecureSkipVerify: true,
			},
		},
	}
	return c
}

// NewSocket returns a client for a unix domain socket endpoint.
func NewSocket(path string) *Client {
	c := New("localhost", 631)
	c.socket = path
	c.httpc.Transport = &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: connectTimeout}
			return d.DialContext(ctx, "unix", path)
		},
	}
	return c
}

// NewForURI returns a client for the host/port of an ipp:// or ipps:// URI.
func NewForURI(uri string) (*Client, error) {
	scheme, host, port, _, err := SplitURI(uri)
	if err != nil {
		return nil, err
	}
	c := New(host, port)
	c.tls = scheme == "ipps"
	return c, nil
}

// SetVersion overrides the IPP version sent in requests. Used by poll
// workers when the configuration pins an upstream to an older version.
func (c *Client) SetVersion(major, minor int) {
	c.version = goipp.MakeVersion(uint8(major), uint8(minor))
}

// Host returns the remote host this client is bound to.
func (c *Client) Host() string { return c.host }

// SplitURI tears an ipp/ipps/http/https URI into scheme, host, port and
// resource path. The port defaults to 631 when absent.
func SplitURI(uri string) (scheme, host string, port int, resource string, err error) {
	rest := uri
	i := strings.Index(rest, "://")
	if i < 0 {
		return "", "", 0, "", fmt.Errorf("cups: bad uri %q", uri)
	}
	scheme = strings.ToLower(rest[:i])
	rest = rest[i+3:]

	resource = "/"
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		resource = rest[j:]
		rest = rest[:j]
	}

	host = rest
	port = 631
	// Bracketed IPv6 literal, possibly with a port.
	if strings.HasPrefix(rest, "[") {
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return "", "", 0, "", fmt.Errorf("cups: bad uri %q", uri)
		}
		host = rest[1:j]
		rest = rest[j+1:]
		if strings.HasPrefix(rest, ":") {
			if _, err := fmt.Sscanf(rest[1:], "%d", &port); err != nil {
				return "", "", 0, "", fmt.Errorf("cups: bad port in %q", uri)
			}
		}
	} else if j := strings.LastIndexByte(rest, ':'); j >= 0 {
		host = rest[:j]
		if _, err := fmt.Sscanf(rest[j+1:], "%d", &port); err != nil {
			return "", "", 0, "", fmt.Errorf("cups: bad port in %q", uri)
		}
	}
	if host == "" {
		return "", "", 0, "", fmt.Errorf("cups: empty host in %q", uri)
	}
	return scheme, host, port, resource, nil
}

// PinServer decides the CUPS_SERVER value for this process: the domain
// socket when it exists and is world read/write/executable, localhost
// otherwise. Pinning at startup isolates the daemon from client-side
// overrides in the environment.
func PinServer(domainSocket string) string {
	if domainSocket != "" {
		if st, err := os.Stat(domainSocket); err == nil {
			if st.Mode().Perm()&0o007 == 0o007 {
				return domainSocket
			}
		}
	}
	return "localhost"
}

func (c *Client) nextID() uint32 {
	return atomic.AddUint32(&c.requestID, 1)
}

// newRequest builds a request with the standard operation preamble.
func (c *Client) newRequest(op goipp.Op, uri string) *goipp.Message {
	m := goipp.NewRequest(c.version, op, c.nextID())
	m.Operation.Add(goipp.MakeAttribute("attributes-charset",
		goipp.TagCharset, goipp.String("utf-8")))
	m.Operation.Add(goipp.MakeAttribute("attributes-natural-language",
		goipp.TagLanguage, goipp.String("en")))
	if uri != "" {
		m.Operation.Add(goipp.MakeAttribute("printer-uri",
			goipp.TagURI, goipp.String(uri)))
	}
	return m
}

// endpoint returns the HTTP URL for the given resource path.
func (c *Client) endpoint(path string) string {
	scheme := "http"
	if c.tls {
		scheme = "https"
	}
	host := c.host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, c.port, path)
}

// do encodes and sends a request, optionally followed by a document body,
// and decodes the response. IPP error statuses become Go errors; the
// decoded message is still returned for callers that need the groups.
func (c *Client) do(ctx context.Context, m *goipp.Message, path string, doc io.Reader) (*goipp.Message, error) {
	encoded, err := m.EncodeBytes()
	if err != nil {
		return nil, fmt.Errorf("cups: encode: %w", err)
	}

	var body io.Reader = bytes.NewReader(encoded)
	if doc != nil {
		body = io.MultiReader(bytes.NewReader(encoded), doc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ipp")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cups: %s: %w", goipp.Op(m.Code), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cups: %s: http %d", goipp.Op(m.Code), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("cups: read response: %w", err)
	}

	var rsp goipp.Message
	if err := rsp.DecodeBytes(data); err != nil {
		return nil, fmt.Errorf("cups: decode response: %w", err)
	}

	status := goipp.Status(rsp.Code)
	switch {
	case status == goipp.StatusErrorNotFound:
		return &rsp, fmt.Errorf("cups: %s: %s: %w", goipp.Op(m.Code), status, ErrNotFound)
	case status >= 0x0400:
		return &rsp, fmt.Errorf("cups: %s failed: %s", goipp.Op(m.Code), status)
	}
	return &rsp, nil
}
