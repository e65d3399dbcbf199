package cups

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitURI(t *testing.T) {
	t.Parallel()

	cases := []struct {
		uri      string
		scheme   string
		host     string
		port     int
		resource string
		wantErr  bool
	}{
		{uri: "ipp://printer.local:631/printers/hplj", scheme: "ipp", host: "printer.local", port: 631, resource: "/printers/hplj"},
		{uri: "ipps://printer.local/ipp/print", scheme: "ipps", host: "printer.local", port: 631, resource: "/ipp/print"},
		{uri: "IPP://Server:9100/x", scheme: "ipp", host: "Server", port: 9100, resource: "/x"},
		{uri: "ipp://host", scheme: "ipp", host: "host", port: 631, resource: "/"},
		{uri: "ipp://[fe80::1]:631/printers/a", scheme: "ipp", host: "fe80::1", port: 631, resource: "/printers/a"},
		{uri: "ipp://[2001:db8::2]/printers/a", scheme: "ipp", host: "2001:db8::2", port: 631, resource: "/printers/a"},
		{uri: "no-scheme", wantErr: true},
		{uri: "ipp://:631/x", wantErr: true},
		{uri: "ipp://host:notaport/x", wantErr: true},
	}

	for _, tc := range cases {
		scheme, host, port, resource, err := SplitURI(tc.uri)
		if tc.wantErr {
			if err == nil {
				t.Errorf("SplitURI(%q): expected error", tc.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitURI(%q): %v", tc.uri, err)
			continue
		}
		if scheme != tc.scheme || host != tc.host || port != tc.port || resource != tc.resource {
			t.Errorf("SplitURI(%q) = (%s, %s, %d, %s), want (%s, %s, %d, %s)",
				tc.uri, scheme, host, port, resource,
				tc.scheme, tc.host, tc.port, tc.resource)
		}
	}
}

func TestPinServer(t *testing.T) {
	t.Parallel()

	if got := PinServer(""); got != "localhost" {
		t.Errorf("no socket: got %q, want localhost", got)
	}
	if got := PinServer("/does/not/exist.sock"); got != "localhost" {
		t.Errorf("missing socket: got %q, want localhost", got)
	}

	dir := t.TempDir()

	open := filepath.Join(dir, "open.sock")
	if err := os.WriteFile(open, nil, 0o777); err != nil {
		t.Fatal(err)
	}
	// Explicit chmod; WriteFile is subject to the umask.
	if err := os.Chmod(open, 0o777); err != nil {
		t.Fatal(err)
	}
	if got := PinServer(open); got != open {
		t.Errorf("world-accessible socket: got %q, want %q", got, open)
	}

	restricted := filepath.Join(dir, "root.sock")
	if err := os.WriteFile(restricted, nil, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(restricted, 0o700); err != nil {
		t.Fatal(err)
	}
	if got := PinServer(restricted); got != "localhost" {
		t.Errorf("restricted socket: got %q, want localhost", got)
	}
}
