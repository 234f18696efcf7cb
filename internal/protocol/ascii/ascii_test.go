package ascii

import (
	"bytes"
	"errors"
	"testing"
)

func TestHexFieldsAreFixedWidthUppercase(t *testing.T) {
	if got := Hex(0xd700, 4); got != "D700" {
		t.Fatalf("unexpected offset field: %q", got)
	}
	if got := Hex(6, 2); got != "06" {
		t.Fatalf("unexpected length field: %q", got)
	}
	if got := HexBytes([]byte{0x03, 0x7a, 0xff}); got != "037AFF" {
		t.Fatalf("unexpected payload: %q", got)
	}
}

func TestUnhexAndParseHex(t *testing.T) {
	b, err := Unhex("fffffffffffffc00")
	if err != nil {
		t.Fatalf("unhex: %v", err)
	}
	if !bytes.Equal(b, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfc, 0x00}) {
		t.Fatalf("unexpected bytes: % x", b)
	}
	if _, err := Unhex("ABC"); !errors.Is(err, ErrInvalidHex) {
		t.Fatalf("expected ErrInvalidHex for odd length, got %v", err)
	}
	v, err := ParseHex("c700")
	if err != nil || v != 0xc700 {
		t.Fatalf("parse hex: v=%x err=%v", v, err)
	}
	if _, err := ParseHex("G1"); !errors.Is(err, ErrInvalidHex) {
		t.Fatalf("expected ErrInvalidHex, got %v", err)
	}
}

func TestDecodeNameStopsAtPad(t *testing.T) {
	raw, _ := Unhex("434F4D4D45524349414CFFFFFFFFFFFF")
	if got := DecodeName(raw); got != "COMMERCIAL" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := DecodeName(append(raw, 0xff, 0xff, 0x41)); got != "COMMERCIAL" {
		t.Fatalf("trailing bytes must be ignored: %q", got)
	}
	if got := DecodeName([]byte("FULLNAME")); got != "FULLNAME" {
		t.Fatalf("unpadded name: %q", got)
	}
}

func TestEncodeNamePadsAndRejects(t *testing.T) {
	dst := make([]byte, 8)
	if err := EncodeName("BUOY", dst); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(dst, []byte{'B', 'U', 'O', 'Y', 0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("unexpected padding: % x", dst)
	}
	if err := EncodeName("TOO LONG NAME", dst); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
	if err := EncodeName("caf\xc3\xa9", dst); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestDigitsRoundTrip(t *testing.T) {
	dst := make([]byte, 5)
	if err := EncodeDigits("366123456", dst); err != nil {
		t.Fatalf("encode digits: %v", err)
	}
	if !bytes.Equal(dst, []byte{0x36, 0x61, 0x23, 0x45, 0x6f}) {
		t.Fatalf("unexpected packing: % x", dst)
	}
	if got := DecodeDigits(dst, 9); got != "366123456" {
		t.Fatalf("unexpected digits: %q", got)
	}
	if err := EncodeDigits("", dst); err != nil || !IsBlank(dst) {
		t.Fatalf("empty digits must blank the field: % x err=%v", dst, err)
	}
	if got := DecodeDigits(dst, 9); got != "" {
		t.Fatalf("blank field must decode empty, got %q", got)
	}
	if err := EncodeDigits("12A", dst); !errors.Is(err, ErrInvalidDigit) {
		t.Fatalf("expected ErrInvalidDigit, got %v", err)
	}
}
