package domain

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string // decimal representation of the fixed-point integer
		wantErr bool
	}{
		{"one", "1", "1000000000000000000", false},
		{"one point one", "1.1", "1100000000000000000", false},
		{"zero", "0", "0", false},
		{"smallest unit", "0.000000000000000001", "1", false},
		{"large", "1000000", "1000000000000000000000000", false},
		{"too precise", "0.0000000000000000001", "", true},
		{"negative", "-1", "", true},
		{"not a number", "abc", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParsePrice(%q) expected error, got %s", tt.input, got.Dec())
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q) unexpected error: %v", tt.input, err)
			}
			if got.Dec() != tt.want {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got.Dec(), tt.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name  string
		input *uint256.Int
		want  string
	}{
		{"zero", uint256.NewInt(0), "0"},
		{"one", uint256.NewInt(1_000_000_000_000_000_000), "1"},
		{"one point one", uint256.NewInt(1_100_000_000_000_000_000), "1.1"},
		{"smallest unit", uint256.NewInt(1), "0.000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPrice(tt.input); got != tt.want {
				t.Errorf("FormatPrice(%s) = %q, want %q", tt.input.Dec(), got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1000000000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Dec() != "1000000000000000000000" {
		t.Errorf("ParseAmount = %s", a.Dec())
	}

	for _, bad := range []string{"", "-5", "1.5", "0x10"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("ParseAmount(%q) expected error", bad)
		}
	}
}
