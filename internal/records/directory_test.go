package records

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/hxctl/internal/testutil/testlog"
)

func TestDirectoryRoundTrip(t *testing.T) {
	testlog.Start(t)
	entries := []DirectoryEntry{
		{Slot: 0, Name: "SEA WITCH", MMSI: "366123450"},
		{Slot: 1, Name: "DOCKMASTER", MMSI: "338765430"},
	}
	numbers := make([]byte, 4*5)
	names := make([]byte, 4*16)
	if err := EncodeDirectory(entries, false, numbers, names, 4); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(numbers[:5], []byte{0x36, 0x61, 0x23, 0x45, 0x0F}) {
		t.Fatalf("unexpected number field % X", numbers[:5])
	}
	if !bytes.Equal(numbers[10:], bytes.Repeat([]byte{0xFF}, 10)) {
		t.Fatalf("unused slots must be blank")
	}
	got, err := DecodeDirectory(numbers, names, 4)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("round trip got=%+v", got)
	}
}

func TestValidateMMSI(t *testing.T) {
	testlog.Start(t)
	if err := ValidateMMSI("036612345", true); err != nil {
		t.Fatalf("group: %v", err)
	}
	cases := []struct {
		mmsi  string
		group bool
	}{
		{"366123450", true},
		{"036612345", false},
		{"36612345", false},
		{"36612345X", false},
	}
	for _, tc := range cases {
		if err := ValidateMMSI(tc.mmsi, tc.group); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q group=%v: expected ErrValidation, got %v", tc.mmsi, tc.group, err)
		}
	}
}

func TestEncodeDirectoryRejectsDuplicates(t *testing.T) {
	entries := []DirectoryEntry{{Slot: 0, Name: "A", MMSI: "366123450"}, {Slot: 1, Name: "B", MMSI: "366123450"}}
	err := EncodeDirectory(entries, false, make([]byte, 10), make([]byte, 32), 2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	entries[1].MMSI, entries[1].Slot = "366123451", 0
	if err := EncodeDirectory(entries, false, make([]byte, 10), make([]byte, 32), 2); !errors.Is(err, ErrValidation) {
		t.Fatalf("shared slot: expected ErrValidation, got %v", err)
	}
}

func TestEncodeDirectoryKeepsSlots(t *testing.T) {
	testlog.Start(t)
	numbers := bytes.Repeat([]byte{0xFF}, 4*5)
	names := bytes.Repeat([]byte{0xFF}, 4*16)
	// slot 1 is in use, slot 3 is unused but carries a stale name
	copy(numbers[5:], []byte{0x33, 0x87, 0x65, 0x43, 0x0F})
	copy(names[16:], "DOCKMASTER")
	copy(names[48:], "OLD")

	entries := []DirectoryEntry{{Slot: 2, Name: "SEA WITCH", MMSI: "366123450"}}
	if err := EncodeDirectory(entries, false, numbers, names, 4); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDirectory(numbers, names, 4)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("entry must stay in slot 2, got %+v", got)
	}
	if !bytes.Equal(names[16:32], bytes.Repeat([]byte{0xFF}, 16)) {
		t.Fatalf("dropped entry must be blanked: % X", names[16:32])
	}
	if string(names[48:51]) != "OLD" {
		t.Fatalf("unused slot must be left alone: % X", names[48:64])
	}
}

func TestDecodeIdentity(t *testing.T) {
	testlog.Start(t)
	mmsi, err := DecodeMMSI([]byte{0x36, 0x61, 0x23, 0x45, 0x6F, 0xFF})
	if err != nil || mmsi != "366123456" {
		t.Fatalf("mmsi=%q err=%v", mmsi, err)
	}
	if mmsi, err := DecodeMMSI(bytes.Repeat([]byte{0xFF}, 6)); err != nil || mmsi != "" {
		t.Fatalf("blank mmsi=%q err=%v", mmsi, err)
	}
	atis, err := DecodeATIS([]byte{0x92, 0x11, 0x23, 0x45, 0x67})
	if err != nil || atis != "9211234567" {
		t.Fatalf("atis=%q err=%v", atis, err)
	}
	if _, err := DecodeMMSI([]byte{0x3A, 0x61, 0x23, 0x45, 0x6F, 0xFF}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
