package hostinfo

import (
	"net/netip"
	"path/filepath"
	"testing"
)

func TestResolverWithoutDatabases(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	info := r.Resolve(netip.MustParseAddr("192.168.1.10"))
	if !info.Private {
		t.Error("Expected 192.168.1.10 to be private")
	}
	if info.HasLocation || info.Highlight || info.FirstSeen {
		t.Errorf("Expected an otherwise empty Info, got %+v", info)
	}
}

func TestResolverLabelsAndHighlight(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "hosts.db"))
	if err := store.SetLabels(map[string]string{"203.0.113.0/24": "Backup NAS"}); err != nil {
		t.Fatalf("SetLabels failed: %v", err)
	}
	r := NewResolver(nil, store, []string{"nas", " ", "cdn"})
	defer func() {
		if err := r.Close(); err != nil {
			t.Logf("Error closing resolver: %v", err)
		}
	}()

	info := r.Resolve(netip.MustParseAddr("203.0.113.4"))
	if info.Label != "Backup NAS" {
		t.Errorf("Expected label Backup NAS, got %q", info.Label)
	}
	if !info.Highlight {
		t.Error("Expected label to match the highlight watchlist")
	}
	if !info.FirstSeen {
		t.Error("Expected first resolution to be a first sighting")
	}

	again := r.Resolve(netip.MustParseAddr("203.0.113.4"))
	if again.FirstSeen {
		t.Error("Expected second resolution to be a known host")
	}

	other := r.Resolve(netip.MustParseAddr("198.51.100.1"))
	if other.Highlight {
		t.Error("Expected unlabelled host not to be highlighted")
	}
}

func TestCountryName(t *testing.T) {
	tests := []struct {
		cc   string
		want string
	}{
		{"DE", "Germany"},
		{"", ""},
		{"ZZ", "ZZ"},
	}
	for _, tt := range tests {
		if got := CountryName(tt.cc); got != tt.want {
			t.Errorf("CountryName(%q) = %q, want %q", tt.cc, got, tt.want)
		}
	}
}
