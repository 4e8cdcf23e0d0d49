package hostinfo

import (
	"net/netip"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func TestStoreLabels(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "hosts.db"))
	defer func() {
		if err := s.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()

	labels := map[string]string{
		"0.0.0.0/0":      "internet",
		"10.0.0.0/8":     "office",
		"10.1.0.0/16":    "lab",
		"10.1.1.1/32":    "build-server",
		"2001:db8::/32":  "v6-doc",
		"not-a-prefix/x": "ignored",
	}
	if err := s.SetLabels(labels); err != nil {
		t.Fatalf("SetLabels failed: %v", err)
	}

	tests := []struct {
		ip   string
		want string
	}{
		{"10.1.1.1", "build-server"},
		{"10.1.1.2", "lab"},
		{"10.2.0.1", "office"},
		{"8.8.8.8", "internet"},
		{"2001:db8::5", "v6-doc"},
		{"2001:dead::1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, err := s.Label(netip.MustParseAddr(tt.ip))
			if err != nil {
				t.Errorf("Label failed for %s: %v", tt.ip, err)
			}
			if got != tt.want {
				t.Errorf("Label(%s) = %q, want %q", tt.ip, got, tt.want)
			}
		})
	}

	// A narrower label added later must win over the cached answer.
	if err := s.SetLabel(netip.MustParsePrefix("10.2.0.0/24"), "printers"); err != nil {
		t.Fatalf("SetLabel failed: %v", err)
	}
	if got, _ := s.Label(netip.MustParseAddr("10.2.0.1")); got != "printers" {
		t.Errorf("Expected printers after update, got %q", got)
	}
}

func TestStoreSeenPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.db")
	addr := netip.MustParseAddr("192.0.2.7")

	s := openTestStore(t, path)
	isNew, err := s.MarkSeen(addr)
	if err != nil || !isNew {
		t.Errorf("Expected first sighting to be new, got %v (err %v)", isNew, err)
	}
	isNew, _ = s.MarkSeen(addr)
	if isNew {
		t.Error("Expected second sighting to be known")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	s = openTestStore(t, path)
	defer func() {
		if err := s.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()
	if isNew, _ := s.MarkSeen(addr); isNew {
		t.Error("Expected host to be remembered across sessions")
	}
	if n, err := s.SeenCount(); err != nil || n != 1 {
		t.Errorf("Expected 1 seen host, got %d (err %v)", n, err)
	}
}
