package utils

import (
	"math/big"
	"testing"
)

func TestChecksumAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{" 0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359 ", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"},
		{"", ""},
	}

	for _, c := range cases {
		if got := ChecksumAddress(c.in); got != c.want {
			t.Errorf("ChecksumAddress(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Errorf("expected valid address")
	}
	if IsValidAddress("0x123") {
		t.Errorf("expected invalid address")
	}
	if IsValidAddress("not-an-address") {
		t.Errorf("expected invalid address")
	}
}

func TestAdjustDecimals(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	got := AdjustDecimals(raw, 18)
	if f, _ := got.Float64(); f != 1.5 {
		t.Errorf("AdjustDecimals = %v, want 1.5", got)
	}

	got = AdjustDecimals(big.NewInt(123456), 6)
	if got.String() != "0.123456" {
		t.Errorf("AdjustDecimals = %s, want 0.123456", got)
	}
}

func TestFormatUnits(t *testing.T) {
	got := FormatUnits(big.NewInt(1500000), 6)
	if got != "1.500000" {
		t.Errorf("FormatUnits = %s, want 1.500000", got)
	}
}
