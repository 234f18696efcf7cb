package records

import (
	"fmt"

	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
)

const channelModule = "channels"

const (
	// dualDesignation is the channel number byte shared by the international
	// and the regional simplex variant of the same channel.
	dualDesignation = 0x07
	intlPrefix      = "10"
	regionalSuffix  = "A"

	dscBit        = 0x80
	scramblerOn   = 0x80
	scrambler32   = 0x40
	scramblerCode = 0x1F
	// scramblerSpare are the b3 bits no scrambler field models.
	scramblerSpare = ^byte(scramblerOn | scrambler32 | scramblerCode)
)

// DSC is the per-channel digital selective calling switch.
type DSC string

const (
	DSCEnabled  DSC = "enabled"
	DSCDisabled DSC = "disabled"
)

// Scrambler families.
const (
	ScramblerType4  = 4
	ScramblerType32 = 32
)

// Scrambler is a voice privacy setting: a family and a code within it.
type Scrambler struct {
	Type int `yaml:"type"`
	Code int `yaml:"code"`
}

// Validate checks the family and the code range of that family.
func (s Scrambler) Validate() error {
	if reason := s.problem(); reason != "" {
		return invalid(channelModule, "scrambler", "%s", reason)
	}
	return nil
}

func (s Scrambler) problem() string {
	switch s.Type {
	case ScramblerType4, ScramblerType32:
	default:
		return fmt.Sprintf("unknown scrambler type %d (want 4 or 32)", s.Type)
	}
	if s.Code < 0 || s.Code >= s.Type {
		return fmt.Sprintf("scrambler code %d out of range 0..%d for type %d", s.Code, s.Type-1, s.Type)
	}
	return ""
}

// Channel is one slot of the channel table.
type Channel struct {
	Slot int
	ID   string
	// Flags is the raw flag record. Bits not modeled by the other fields
	// round-trip verbatim.
	Flags     [layout.ChannelFlagBytes]byte
	Enabled   bool
	DSC       DSC
	Name      string
	Scrambler *Scrambler
}

// ChannelID derives the displayed channel identifier from the first two
// flag bytes.
func ChannelID(b0, b1 byte) string {
	if b0 == dualDesignation {
		if b1&0x01 == 0 {
			return intlPrefix + ascii.Hex(int(b0), 2)
		}
		return ascii.Hex(int(b0), 2) + regionalSuffix
	}
	return ascii.Hex(int(b0), 2)
}

// IsUnusedChannel reports whether a flag record marks an empty slot.
func IsUnusedChannel(flags []byte) bool {
	return ascii.IsBlank(flags)
}

// EnabledBit reads bit slot of a big-endian bitmap.
func EnabledBit(bitmap []byte, slot int) bool {
	return (bitmap[slot/8]>>(7-slot%8))&1 == 1
}

// SetEnabledBit writes bit slot of a big-endian bitmap.
func SetEnabledBit(bitmap []byte, slot int, on bool) {
	mask := byte(1) << (7 - slot%8)
	if on {
		bitmap[slot/8] |= mask
	} else {
		bitmap[slot/8] &^= mask
	}
}

// DecodeChannel decodes one channel slot.
func DecodeChannel(slot int, bitmap, flags, name []byte) (Channel, error) {
	if err := checkChannelBuffers(slot, bitmap, flags); err != nil {
		return Channel{}, err
	}
	ch := Channel{
		Slot:    slot,
		ID:      ChannelID(flags[0], flags[1]),
		Enabled: EnabledBit(bitmap, slot),
		DSC:     DSCDisabled,
		Name:    ascii.DecodeName(name),
	}
	copy(ch.Flags[:], flags)
	if flags[2]&dscBit != 0 {
		ch.DSC = DSCEnabled
	}
	ch.Scrambler = decodeScrambler(flags[3])
	return ch, nil
}

func decodeScrambler(b3 byte) *Scrambler {
	if b3 == 0 {
		return nil
	}
	s := &Scrambler{Type: ScramblerType4, Code: int(b3 & scramblerCode)}
	if b3&scrambler32 != 0 {
		s.Type = ScramblerType32
	}
	return s
}

func sameScrambler(a, b *Scrambler) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// EncodeChannel writes ch into its enable bit, flag record and name record.
// DSC and scrambler are applied on top of ch.Flags. A scrambler equal to the
// one ch.Flags already decodes to leaves the fourth byte untouched, and a
// changed one keeps the spare bits of that byte. A non-empty ID must match
// the identifier the flags produce.
func EncodeChannel(ch Channel, bitmap, flags, name []byte) error {
	if err := checkChannelBuffers(ch.Slot, bitmap, flags); err != nil {
		return err
	}
	subject := fmt.Sprintf("slot %d", ch.Slot)
	out := ch.Flags
	if ascii.IsBlank(out[:]) {
		return invalid(channelModule, subject, "flags % X mark an unused slot", out[:])
	}
	if derived := ChannelID(out[0], out[1]); ch.ID != "" && ch.ID != derived {
		return invalid(channelModule, subject, "id %q does not match flags % X (id %q)", ch.ID, out[:], derived)
	}

	switch ch.DSC {
	case DSCEnabled:
		out[2] |= dscBit
	case DSCDisabled:
		out[2] &^= dscBit
	case "":
		return invalid(channelModule, subject, "dsc is missing (want enabled or disabled)")
	default:
		return invalid(channelModule, subject, "dsc %q (want enabled or disabled)", ch.DSC)
	}

	switch s := ch.Scrambler; {
	case sameScrambler(s, decodeScrambler(out[3])):
	case s == nil:
		// zero is the only encoding of no scrambler
		out[3] = 0
	default:
		if reason := s.problem(); reason != "" {
			return invalid(channelModule, subject, "%s", reason)
		}
		b3 := out[3]&scramblerSpare | scramblerOn | byte(s.Code)
		if s.Type == ScramblerType32 {
			b3 |= scrambler32
		}
		out[3] = b3
	}

	if err := ascii.EncodeName(ch.Name, name); err != nil {
		return invalid(channelModule, subject, "name: %v", err)
	}
	copy(flags, out[:])
	SetEnabledBit(bitmap, ch.Slot, ch.Enabled)
	return nil
}

func checkChannelBuffers(slot int, bitmap, flags []byte) error {
	if len(flags) != layout.ChannelFlagBytes {
		return fmt.Errorf("records: channel flags must be %d bytes, got %d", layout.ChannelFlagBytes, len(flags))
	}
	if slot < 0 || slot/8 >= len(bitmap) {
		return fmt.Errorf("records: channel slot %d outside %d-byte enable bitmap", slot, len(bitmap))
	}
	return nil
}
