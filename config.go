package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"printbrowsed/browse"
)

// configFileName is searched for in the standard locations.
const configFileName = "printbrowsed.conf"

// defaultDomainSocket is the usual CUPS domain socket location.
const defaultDomainSocket = "/run/cups/cups.sock"

// configSearchPaths returns an ordered list of locations to look for the
// configuration file: system directory, user config directory, executable
// directory, working directory.
func configSearchPaths() []string {
	paths := []string{filepath.Join("/etc/printbrowsed", configFileName)}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "printbrowsed", configFileName))
	}
	if exePath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exePath), configFileName))
	}
	paths = append(paths, filepath.Join(".", configFileName))
	return paths
}

// findConfigFile returns the first existing config file, or "" when none
// exists anywhere. Running without a config file is normal.
func findConfigFile() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// configWarning collects parse complaints so they can be logged once the
// logger exists.
type configWarning struct {
	Line int
	Msg  string
}

// loadConfig parses the key/value configuration file into Options. A
// broken line never aborts startup; it is reported and skipped.
func loadConfig(path string, opts *browse.Options) ([]configWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var warnings []configWarning
	warn := func(line int, format string, args ...interface{}) {
		warnings = append(warnings, configWarning{line, fmt.Sprintf(format, args...)})
	}

	// Local dnssd is delegated to CUPS itself; only the legacy protocol
	// can be broadcast from here.
	remoteDNSSD, remoteCUPS, localCUPS := false, false, false
	sawRemote, sawLocal := false, false

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := line
		value := ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, value = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch strings.ToLower(key) {
		case "browseprotocols", "browselocalprotocols", "browseremoteprotocols":
			dnssd, cupsProto, ok := parseProtocols(value)
			if !ok {
				warn(lineNo, "unrecognised protocol list %q", value)
				continue
			}
			k := strings.ToLower(key)
			if k == "browseprotocols" || k == "browseremoteprotocols" {
				sawRemote = true
				remoteDNSSD = remoteDNSSD || dnssd
				remoteCUPS = remoteCUPS || cupsProto
			}
			if k == "browseprotocols" || k == "browselocalprotocols" {
				sawLocal = true
				if dnssd {
					warn(lineNo, "local dnssd browsing is not supported, dropping")
				}
				localCUPS = localCUPS || cupsProto
			}

		case "browsepoll":
			srv, err := parsePollServer(value)
			if err != nil {
				warn(lineNo, "bad BrowsePoll value %q: %v", value, err)
				continue
			}
			opts.BrowsePoll = append(opts.BrowsePoll, srv)

		case "browseallow":
			rule := browse.ParseAllowRule(value)
			if !rule.Valid() {
				warn(lineNo, "invalid BrowseAllow value %q (rule retained, matches nothing)", value)
			}
			opts.Allow = append(opts.Allow, rule)

		case "domainsocket":
			opts.DomainSocket = value

		case "createippprinterqueues":
			b, err := parseBool(value)
			if err != nil {
				warn(lineNo, "bad CreateIPPPrinterQueues value %q", value)
				continue
			}
			opts.CreateIPPPrinterQueues = b

		case "autoshutdown":
			mode, err := parseAutoShutdown(value)
			if err != nil {
				warn(lineNo, "bad AutoShutdown value %q", value)
				continue
			}
			opts.AutoShutdown = mode

		case "autoshutdowntimeout":
			secs, err := strconv.Atoi(value)
			if err != nil || secs < 0 {
				warn(lineNo, "bad AutoShutdownTimeout value %q", value)
				continue
			}
			opts.AutoShutdownTimeout = secondsToDuration(secs)

		default:
			warn(lineNo, "unknown configuration key %q", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return warnings, err
	}

	if sawRemote {
		opts.BrowseRemoteDNSSD = remoteDNSSD
		opts.BrowseRemoteCUPS = remoteCUPS
	}
	if sawLocal {
		opts.BrowseLocalCUPS = localCUPS
	}
	return warnings, nil
}

// parseProtocols splits a protocol list ("dnssd cups", "none", ...) into
// its dnssd/cups components.
func parseProtocols(value string) (dnssd, cups, ok bool) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	ok = true
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "dnssd":
			dnssd = true
		case "cups":
			cups = true
		case "none":
		default:
			ok = false
		}
	}
	return dnssd, cups, ok
}

// parsePollServer parses "host[:port][/version=X.Y]".
func parsePollServer(value string) (browse.PollServer, error) {
	srv := browse.PollServer{Port: 631}
	if value == "" {
		return srv, fmt.Errorf("empty server")
	}

	if i := strings.Index(value, "/version="); i >= 0 {
		ver := value[i+len("/version="):]
		value = value[:i]
		j := strings.IndexByte(ver, '.')
		if j < 0 {
			return srv, fmt.Errorf("version must be major.minor")
		}
		major, err1 := strconv.Atoi(ver[:j])
		minor, err2 := strconv.Atoi(ver[j+1:])
		if err1 != nil || err2 != nil || major <= 0 || minor < 0 {
			return srv, fmt.Errorf("bad version %q", ver)
		}
		srv.Major, srv.Minor = major, minor
	}

	host := value
	if i := strings.LastIndexByte(value, ':'); i >= 0 && !strings.Contains(value, "]") {
		port, err := strconv.Atoi(value[i+1:])
		if err != nil || port <= 0 || port > 65535 {
			return srv, fmt.Errorf("bad port %q", value[i+1:])
		}
		host = value[:i]
		srv.Port = port
	}
	if host == "" {
		return srv, fmt.Errorf("empty host")
	}
	srv.Host = host
	return srv, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "1", "yes", "true":
		return true, nil
	case "off", "0", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

func parseAutoShutdown(value string) (browse.AutoShutdownMode, error) {
	switch strings.ToLower(value) {
	case "on":
		return browse.AutoShutdownOn, nil
	case "off", "none":
		return browse.AutoShutdownOff, nil
	case "avahi":
		return browse.AutoShutdownAvahi, nil
	}
	return browse.AutoShutdownOff, fmt.Errorf("unknown mode")
}

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
