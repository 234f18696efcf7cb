package modules

import (
	"fmt"
	"sort"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	keyChannels        = "channels"
	rangeChannelFlags  = "channel_flags"
	rangeChannelEnable = "channel_enabled"
	rangeChannelNames  = "channel_names"
)

// channelEntry is the document form of one channel.
type channelEntry struct {
	Slot      *int               `yaml:"slot,omitempty"`
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Enabled   bool               `yaml:"enabled"`
	DSC       records.DSC        `yaml:"dsc"`
	Scrambler *records.Scrambler `yaml:"scrambler,omitempty"`
	// Flags carries the raw flag record so unmodeled bits survive a write.
	Flags string `yaml:"flags"`
}

// Channels maps the channel table: flag records, the enable bitmap and the
// channel names. The table addresses are not confirmed against a radio, so
// writes only happen when the write context allows them.
type Channels struct {
	table layout.ChannelTable
}

func NewChannels(l *layout.Layout) *Channels {
	return &Channels{table: l.Channels}
}

func (m *Channels) Name() string { return keyChannels }

func (m *Channels) AddRanges(r *batch.Reader) error {
	t := m.table
	if err := r.AddRange(rangeChannelFlags, t.FlagsStart, t.FlagsStart+t.Count*layout.ChannelFlagBytes); err != nil {
		return err
	}
	if err := r.AddRange(rangeChannelEnable, t.EnabledStart, t.EnabledStart+layout.EnableBitmapBytes); err != nil {
		return err
	}
	return r.AddRange(rangeChannelNames, t.NamesStart, t.NamesStart+t.Count*t.NameBytes)
}

func (m *Channels) Decode(res batch.Results, cfg *Config, doc *yaml.Node) error {
	flags, ok1 := res.Get(rangeChannelFlags)
	bitmap, ok2 := res.Get(rangeChannelEnable)
	names, ok3 := res.Get(rangeChannelNames)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	t := m.table
	channels := make([]records.Channel, 0, t.Count)
	entries := make([]channelEntry, 0, t.Count)
	for slot := 0; slot < t.Count; slot++ {
		f := flags[slot*layout.ChannelFlagBytes : (slot+1)*layout.ChannelFlagBytes]
		if records.IsUnusedChannel(f) {
			continue
		}
		ch, err := records.DecodeChannel(slot, bitmap, f, names[slot*t.NameBytes:(slot+1)*t.NameBytes])
		if err != nil {
			return fmt.Errorf("channels: slot %d at %#04x: %w", slot, t.FlagsStart+slot*layout.ChannelFlagBytes, err)
		}
		channels = append(channels, ch)
		entries = append(entries, channelEntry{
			Slot:      &ch.Slot,
			ID:        ch.ID,
			Name:      ch.Name,
			Enabled:   ch.Enabled,
			DSC:       ch.DSC,
			Scrambler: ch.Scrambler,
			Flags:     ascii.HexBytes(ch.Flags[:]),
		})
	}
	cfg.Channels = channels
	if len(entries) == 0 {
		return nil
	}
	return appendValue(doc, keyChannels, entries)
}

// Encode places each entry in its slot, or the lowest free one, on top of
// the table as last read. Used slots missing from the document are cleared.
func (m *Channels) Encode(doc *yaml.Node, wc *WriteContext) (bool, error) {
	node := document.Lookup(doc, keyChannels)
	if node == nil {
		return false, nil
	}
	if err := document.Expect(node, yaml.SequenceNode, keyChannels); err != nil {
		return false, err
	}
	if !wc.WriteChannels {
		log.Warn().Int("channels", len(node.Content)).Msg("modules.Channels skipped: channel writes are disabled")
		wc.Diagnostics[keyChannels] = Usage{Skipped: true}
		return false, nil
	}
	t := m.table

	entries := make([]channelEntry, len(node.Content))
	plan := make([]slotted, len(node.Content))
	for i, item := range node.Content {
		if err := document.Decode(item, &entries[i]); err != nil {
			return false, err
		}
		plan[i] = slotted{node: item, subject: entries[i].ID, slot: entries[i].Slot}
	}
	slots, err := planSlots(keyChannels, "slot", node, plan, t.Count)
	if err != nil {
		return false, err
	}

	flags := wc.baseline(rangeChannelFlags, t.Count*layout.ChannelFlagBytes, ascii.Pad)
	bitmap := wc.baseline(rangeChannelEnable, layout.EnableBitmapBytes, 0x00)
	names := wc.baseline(rangeChannelNames, t.Count*t.NameBytes, ascii.Pad)
	flagsAt := func(slot int) []byte {
		return flags[slot*layout.ChannelFlagBytes : (slot+1)*layout.ChannelFlagBytes]
	}
	nameAt := func(slot int) []byte {
		return names[slot*t.NameBytes : (slot+1)*t.NameBytes]
	}

	wanted := make(map[int]bool, len(slots))
	for _, slot := range slots {
		wanted[slot] = true
	}
	for slot := 0; slot < t.Count; slot++ {
		if wanted[slot] || records.IsUnusedChannel(flagsAt(slot)) {
			continue
		}
		fill(flagsAt(slot), ascii.Pad)
		fill(nameAt(slot), ascii.Pad)
		records.SetEnabledBit(bitmap, slot, false)
	}

	seen := make(map[string]bool, len(entries))
	channels := make([]records.Channel, 0, len(entries))
	for i, e := range entries {
		item, slot := node.Content[i], slots[i]
		raw, err := ascii.Unhex(e.Flags)
		if err != nil || len(raw) != layout.ChannelFlagBytes {
			return false, document.At(item, records.ValidationError{
				Module:  keyChannels,
				Subject: fmt.Sprintf("slot %d", slot),
				Reason:  fmt.Sprintf("flags %q must be %d hex bytes", e.Flags, layout.ChannelFlagBytes),
			})
		}
		ch := records.Channel{
			Slot:      slot,
			ID:        e.ID,
			Enabled:   e.Enabled,
			DSC:       e.DSC,
			Name:      e.Name,
			Scrambler: e.Scrambler,
		}
		copy(ch.Flags[:], raw)
		id := records.ChannelID(raw[0], raw[1])
		if seen[id] {
			return false, document.At(item, records.ValidationError{Module: keyChannels, Subject: id, Reason: "duplicate channel"})
		}
		seen[id] = true
		if err := records.EncodeChannel(ch, bitmap, flagsAt(slot), nameAt(slot)); err != nil {
			return false, document.At(item, err)
		}
		ch.ID = id
		copy(ch.Flags[:], flagsAt(slot))
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Slot < channels[j].Slot })

	if err := wc.Writer.Prepare(rangeChannelFlags, t.FlagsStart, flags); err != nil {
		return false, err
	}
	if err := wc.Writer.Prepare(rangeChannelEnable, t.EnabledStart, bitmap); err != nil {
		return false, err
	}
	if err := wc.Writer.Prepare(rangeChannelNames, t.NamesStart, names); err != nil {
		return false, err
	}
	wc.Out.Channels = channels
	wc.record(keyChannels, len(channels), t.Count)
	return true, nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
