package version

import "testing"

func TestColored(t *testing.T) {
	tests := []struct {
		in      string
		enabled bool
		want    string
	}{
		{"0.1.0-dev", false, "0.1.0-dev"},
		{"12.4.7", false, "12.4.7"},
		{"dev", true, "dev"},
		{"1.2", true, "1.2"},
		{"1.2.x", true, "1.2.x"},
	}
	for _, tt := range tests {
		if got := Colored(tt.in, tt.enabled); got != tt.want {
			t.Errorf("Colored(%q, %v) = %q, want %q", tt.in, tt.enabled, got, tt.want)
		}
	}
	if got := Colored("1.2.3", true); got == "1.2.3" {
		t.Errorf("color enabled but output is plain")
	}
}

func TestDefaults(t *testing.T) {
	if Version == "" {
		t.Fatal("Version must have a default")
	}
	if splitVersion(Version) == nil {
		t.Errorf("default version %q is not major.minor.patch", Version)
	}
}
