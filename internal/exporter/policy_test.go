package exporter

import "testing"

func TestPortSpecMatches(t *testing.T) {
	tests := []struct {
		name string
		port int
		spec string
		want bool
	}{
		{"single match", 443, "443", true},
		{"single miss", 80, "443", false},
		{"list match", 443, "80,443,8080", true},
		{"range match low edge", 8000, "8000-8999", true},
		{"range match high edge", 8999, "8000-8999", true},
		{"range miss", 9000, "8000-8999", false},
		{"mixed spec", 8443, "80,443,8000-8999", true},
		{"whitespace tolerated", 443, " 80 , 443 ", true},
		{"garbage entry skipped", 80, "abc,80", true},
		{"garbage range skipped", 80, "a-b,90", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := portSpecMatches(tt.port, tt.spec); got != tt.want {
				t.Errorf("portSpecMatches(%d, %q) = %v, want %v", tt.port, tt.spec, got, tt.want)
			}
		})
	}
}

func TestAllowedPolicy(t *testing.T) {
	tests := []struct {
		name  string
		allow string
		deny  string
		port  int
		want  bool
	}{
		{"no policy allows", "", "", 12345, true},
		{"deny wins over allow", "80", "80", 80, false},
		{"allow list restricts", "80,443", "", 8080, false},
		{"allow list admits", "80,443", "", 443, true},
		{"deny only blocks listed", "", "22", 22, false},
		{"deny only passes others", "", "22", 80, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{AllowPorts: tt.allow, DenyPorts: tt.deny})
			if got := m.allowed(tt.port); got != tt.want {
				t.Errorf("allowed(%d) with allow=%q deny=%q = %v, want %v",
					tt.port, tt.allow, tt.deny, got, tt.want)
			}
		})
	}
}
