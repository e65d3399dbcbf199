package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"printbrowsed/browse"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFull(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
# printbrowsed test configuration
BrowseRemoteProtocols dnssd cups
BrowseLocalProtocols cups
BrowsePoll print-server.example.com
BrowsePoll 10.0.0.8:1631/version=1.1
BrowseAllow 10.0.0.0/8
BrowseAllow all
DomainSocket /run/cups/cups.sock
CreateIPPPrinterQueues yes
AutoShutdown avahi
AutoShutdownTimeout 120
`)

	opts := browse.DefaultOptions()
	warnings, err := loadConfig(path, &opts)
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.True(t, opts.BrowseRemoteDNSSD)
	require.True(t, opts.BrowseRemoteCUPS)
	require.True(t, opts.BrowseLocalCUPS)

	require.Len(t, opts.BrowsePoll, 2)
	require.Equal(t, browse.PollServer{Host: "print-server.example.com", Port: 631}, opts.BrowsePoll[0])
	require.Equal(t, browse.PollServer{Host: "10.0.0.8", Port: 1631, Major: 1, Minor: 1}, opts.BrowsePoll[1])

	require.Len(t, opts.Allow, 2)
	require.True(t, opts.Allow.Allowed(net.ParseIP("10.1.2.3")))

	require.Equal(t, "/run/cups/cups.sock", opts.DomainSocket)
	require.True(t, opts.CreateIPPPrinterQueues)
	require.Equal(t, browse.AutoShutdownAvahi, opts.AutoShutdown)
	require.Equal(t, 120*time.Second, opts.AutoShutdownTimeout)
}

func TestLoadConfigProtocolsNone(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "BrowseProtocols none\n")
	opts := browse.DefaultOptions()
	_, err := loadConfig(path, &opts)
	require.NoError(t, err)
	require.False(t, opts.BrowseRemoteDNSSD)
	require.False(t, opts.BrowseRemoteCUPS)
	require.False(t, opts.BrowseLocalCUPS)
}

func TestLoadConfigLocalDNSSDDropped(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "BrowseLocalProtocols dnssd cups\n")
	opts := browse.DefaultOptions()
	warnings, err := loadConfig(path, &opts)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Msg, "dnssd")
	require.True(t, opts.BrowseLocalCUPS)
	// Remote defaults are untouched by a local-only directive.
	require.True(t, opts.BrowseRemoteDNSSD)
}

func TestLoadConfigBadLinesDoNotAbort(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
BogusKey value
BrowsePoll
AutoShutdownTimeout minus-five
CreateIPPPrinterQueues maybe
BrowseAllow not-an-address
BrowsePoll good-server
`)
	opts := browse.DefaultOptions()
	warnings, err := loadConfig(path, &opts)
	require.NoError(t, err)
	require.Len(t, warnings, 5)

	// The good line after the bad ones still applies.
	require.Len(t, opts.BrowsePoll, 1)
	require.Equal(t, "good-server", opts.BrowsePoll[0].Host)

	// The invalid allow rule is retained but matches nothing.
	require.Len(t, opts.Allow, 1)
	require.False(t, opts.Allow.Allowed(net.ParseIP("10.0.0.1")))
}

func TestParsePollServer(t *testing.T) {
	t.Parallel()

	srv, err := parsePollServer("host")
	require.NoError(t, err)
	require.Equal(t, browse.PollServer{Host: "host", Port: 631}, srv)

	srv, err = parsePollServer("host:9100")
	require.NoError(t, err)
	require.Equal(t, browse.PollServer{Host: "host", Port: 9100}, srv)

	srv, err = parsePollServer("host/version=2.1")
	require.NoError(t, err)
	require.Equal(t, browse.PollServer{Host: "host", Port: 631, Major: 2, Minor: 1}, srv)

	for _, bad := range []string{"", "host:0", "host:notaport", "host/version=2", "host/version=x.y"} {
		_, err := parsePollServer(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	cli, err := parseArgs([]string{"-d"})
	require.NoError(t, err)
	require.True(t, cli.debug)

	cli, err = parseArgs([]string{"-vvv"})
	require.NoError(t, err)
	require.True(t, cli.debug)

	cli, err = parseArgs([]string{"--autoshutdown=avahi"})
	require.NoError(t, err)
	require.True(t, cli.autoShutdownSet)
	require.Equal(t, browse.AutoShutdownAvahi, cli.autoShutdown)

	cli, err = parseArgs([]string{"--autoshutdown", "on"})
	require.NoError(t, err)
	require.Equal(t, browse.AutoShutdownOn, cli.autoShutdown)

	cli, err = parseArgs([]string{"--autoshutdown-timeout=45"})
	require.NoError(t, err)
	require.True(t, cli.autoShutdownTimeoutSet)
	require.Equal(t, 45, cli.autoShutdownTimeout)

	_, err = parseArgs([]string{"--autoshutdown-timeout=-1"})
	require.Error(t, err)

	_, err = parseArgs([]string{"--autoshutdown"})
	require.Error(t, err)

	_, err = parseArgs([]string{"--frobnicate"})
	require.Error(t, err)
}
