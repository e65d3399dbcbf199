package browse

import "testing"

func TestNetChangeNotificationsCoalesce(t *testing.T) {
	t.Parallel()

	d, _ := newTestDaemon(DefaultOptions(), newFakeService())

	d.ifaces.notifyChange(d)
	first := d.ifaces.debounce
	if first == nil {
		t.Fatal("first notification must arm the debounce timer")
	}

	// Further notifications inside the window are absorbed.
	d.ifaces.notifyChange(d)
	d.ifaces.notifyChange(d)
	if d.ifaces.debounce != first {
		t.Fatal("notifications within the window must coalesce into one refresh")
	}
	first.Cancel()
}
