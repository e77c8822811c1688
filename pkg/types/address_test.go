package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestAddress_IsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero address should be zero")
	}

	var nonzero Address
	nonzero[19] = 1
	if nonzero.IsZero() {
		t.Error("nonzero address should not be zero")
	}
}

func TestParseAddress(t *testing.T) {
	want := Address{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"raw hex", "deadbeef00000000000000000000000000000000", false},
		{"0x prefix", "0xdeadbeef00000000000000000000000000000000", false},
		{"uppercase prefix", "0Xdeadbeef00000000000000000000000000000000", false},
		{"empty", "", true},
		{"too short", "deadbeef", true},
		{"too long", "deadbeef0000000000000000000000000000000000", true},
		{"not hex", "zzadbeef00000000000000000000000000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error: %v", tt.input, err)
			}
			if got != want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestAddress_String_RoundTrip(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i)
	}

	s := a.String()
	if !strings.HasPrefix(s, "0x") {
		t.Errorf("String() = %q, want 0x prefix", s)
	}

	parsed, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q) error: %v", s, err)
	}
	if parsed != a {
		t.Errorf("round trip = %s, want %s", parsed, a)
	}
}

func TestAddress_JSON(t *testing.T) {
	a := Address{0x01, 0x02, 0x03}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var back Address
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if back != a {
		t.Errorf("JSON round trip = %s, want %s", back, a)
	}
}

func TestAddress_Bytes_Copy(t *testing.T) {
	a := Address{0xff}
	b := a.Bytes()
	b[0] = 0x00
	if a[0] != 0xff {
		t.Error("Bytes() must return a copy, not a view")
	}
}

func TestBytesToAddress(t *testing.T) {
	raw := make([]byte, AddressSize)
	raw[0] = 0xab
	a, err := BytesToAddress(raw)
	if err != nil {
		t.Fatalf("BytesToAddress() error: %v", err)
	}
	if !bytes.Equal(a.Bytes(), raw) {
		t.Errorf("BytesToAddress() = %x, want %x", a.Bytes(), raw)
	}

	if _, err := BytesToAddress(raw[:10]); err == nil {
		t.Error("expected error for short slice")
	}
}

func TestKey_Sentinel(t *testing.T) {
	var zero Key
	if !zero.IsZero() {
		t.Error("zero key should be the absence sentinel")
	}

	k := Key{0x01}
	if k.IsZero() {
		t.Error("nonzero key should not read as absent")
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	var k Key
	for i := range k {
		k[i] = byte(0xff - i)
	}

	parsed, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey() error: %v", err)
	}
	if parsed != k {
		t.Errorf("round trip = %s, want %s", parsed, k)
	}

	if _, err := ParseKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
