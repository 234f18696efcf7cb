package records

import (
	"fmt"

	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
)

// DirectoryEntry is one contact of an individual or group MMSI directory.
type DirectoryEntry struct {
	Slot int
	Name string
	MMSI string
}

func directoryModule(group bool) string {
	if group {
		return "group_mmsi"
	}
	return "individual_mmsi"
}

// ValidateMMSI checks a 9-digit MMSI. Group MMSIs start with 0, individual
// ones never do.
func ValidateMMSI(mmsi string, group bool) error {
	module := directoryModule(group)
	if len(mmsi) != layout.MMSIDigits || !ascii.IsDecimal(mmsi) {
		return invalid(module, mmsi, "mmsi must be %d decimal digits", layout.MMSIDigits)
	}
	if group && mmsi[0] != '0' {
		return invalid(module, mmsi, "group mmsi must start with 0")
	}
	if !group && mmsi[0] == '0' {
		return invalid(module, mmsi, "individual mmsi must not start with 0")
	}
	return nil
}

// DecodeDirectoryEntry decodes one directory slot. A blank number field marks
// an unused slot.
func DecodeDirectoryEntry(slot int, number, name []byte) (DirectoryEntry, bool) {
	mmsi := ascii.DecodeDigits(number, layout.MMSIDigits)
	if mmsi == "" {
		return DirectoryEntry{}, false
	}
	return DirectoryEntry{Slot: slot, Name: ascii.DecodeName(name), MMSI: mmsi}, true
}

// EncodeDirectoryEntry writes e into its number and name fields.
func EncodeDirectoryEntry(e DirectoryEntry, group bool, number, name []byte) error {
	if err := ValidateMMSI(e.MMSI, group); err != nil {
		return err
	}
	module := directoryModule(group)
	if e.Name == "" {
		return invalid(module, e.MMSI, "name is empty")
	}
	if len(e.Name) >= len(name) {
		return invalid(module, e.Name, "name longer than %d characters", len(name)-1)
	}
	if err := ascii.EncodeDigits(e.MMSI, number); err != nil {
		return invalid(module, e.MMSI, "%v", err)
	}
	if err := ascii.EncodeName(e.Name, name); err != nil {
		return invalid(module, e.Name, "%v", err)
	}
	return nil
}

// DecodeDirectory decodes every used slot of a directory table.
func DecodeDirectory(numbers, names []byte, count int) ([]DirectoryEntry, error) {
	if len(numbers) < count*layout.DirectoryNumBytes || len(names) < count*layout.DirectoryNameLen {
		return nil, fmt.Errorf("records: directory of %d entries truncated", count)
	}
	var out []DirectoryEntry
	for slot := 0; slot < count; slot++ {
		num := numbers[slot*layout.DirectoryNumBytes : (slot+1)*layout.DirectoryNumBytes]
		nm := names[slot*layout.DirectoryNameLen : (slot+1)*layout.DirectoryNameLen]
		if e, ok := DecodeDirectoryEntry(slot, num, nm); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// EncodeDirectory writes every entry into its own slot. numbers and names
// hold the table as last read; used slots missing from entries are blanked
// and unused slots are left as they are.
func EncodeDirectory(entries []DirectoryEntry, group bool, numbers, names []byte, count int) error {
	if len(numbers) != count*layout.DirectoryNumBytes || len(names) != count*layout.DirectoryNameLen {
		return fmt.Errorf("records: directory buffers do not match %d entries", count)
	}
	module := directoryModule(group)
	if len(entries) > count {
		return invalid(module, "", "too many entries (found %d, max is %d)", len(entries), count)
	}
	seen := make(map[string]bool, len(entries))
	slots := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Slot < 0 || e.Slot >= count {
			return invalid(module, e.MMSI, "slot %d out of range 0..%d", e.Slot, count-1)
		}
		if slots[e.Slot] {
			return invalid(module, e.MMSI, "slot %d used twice", e.Slot)
		}
		slots[e.Slot] = true
		if seen[e.MMSI] {
			return invalid(module, e.MMSI, "duplicate mmsi")
		}
		seen[e.MMSI] = true
	}
	for slot := 0; slot < count; slot++ {
		num := numbers[slot*layout.DirectoryNumBytes : (slot+1)*layout.DirectoryNumBytes]
		nm := names[slot*layout.DirectoryNameLen : (slot+1)*layout.DirectoryNameLen]
		if _, used := DecodeDirectoryEntry(slot, num, nm); used && !slots[slot] {
			blank(num)
			blank(nm)
		}
	}
	for _, e := range entries {
		num := numbers[e.Slot*layout.DirectoryNumBytes : (e.Slot+1)*layout.DirectoryNumBytes]
		nm := names[e.Slot*layout.DirectoryNameLen : (e.Slot+1)*layout.DirectoryNameLen]
		if err := EncodeDirectoryEntry(e, group, num, nm); err != nil {
			return err
		}
	}
	return nil
}

func blank(b []byte) {
	for i := range b {
		b[i] = ascii.Pad
	}
}

// DecodeMMSI reads the station MMSI. A blank field decodes to "".
func DecodeMMSI(b []byte) (string, error) {
	return decodeIdentity("mmsi", b, layout.MMSIDigits)
}

// DecodeATIS reads the inland ATIS identifier. A blank field decodes to "".
func DecodeATIS(b []byte) (string, error) {
	return decodeIdentity("atis", b, layout.ATISDigits)
}

func decodeIdentity(what string, b []byte, digits int) (string, error) {
	s := ascii.DecodeDigits(b, digits)
	if s == "" {
		return "", nil
	}
	if !ascii.IsDecimal(s) {
		return "", invalid("identity", what, "field % X is not a %d-digit number", b, digits)
	}
	return s, nil
}
