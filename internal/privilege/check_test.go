package privilege

import "testing"

func TestRequiresElevation(t *testing.T) {
	tests := []struct {
		op   string
		want bool
	}{
		{"install", true},
		{"remove", true},
		{"START", true},
		{"set", true},
		{"rotate", true},
		{"status", false},
		{"dump", false},
		{"get", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := RequiresElevation(tt.op); got != tt.want {
			t.Errorf("RequiresElevation(%q) = %v, want %v", tt.op, got, tt.want)
		}
	}
}
