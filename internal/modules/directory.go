package modules

import (
	"sort"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"gopkg.in/yaml.v3"
)

const (
	keyIndividual = "individual_mmsi"
	keyGroup      = "group_mmsi"
)

type directoryEntry struct {
	Slot *int   `yaml:"slot,omitempty"`
	Name string `yaml:"name"`
	MMSI string `yaml:"mmsi"`
}

// Directory maps the individual and group MMSI directories.
type Directory struct {
	individual layout.DirectoryTable
	group      layout.DirectoryTable
}

func NewDirectory(l *layout.Layout) *Directory {
	return &Directory{individual: l.IndividualDirectory, group: l.GroupDirectory}
}

func (m *Directory) Name() string { return "directory" }

type directorySide struct {
	key   string
	group bool
	table layout.DirectoryTable
}

func (m *Directory) sides() []directorySide {
	return []directorySide{
		{key: keyIndividual, table: m.individual},
		{key: keyGroup, group: true, table: m.group},
	}
}

func (s directorySide) numbersRange() string { return s.key + "_numbers" }
func (s directorySide) namesRange() string   { return s.key + "_names" }

func (m *Directory) AddRanges(r *batch.Reader) error {
	for _, s := range m.sides() {
		t := s.table
		if err := r.AddRange(s.numbersRange(), t.NumbersStart, t.NumbersStart+t.Count*layout.DirectoryNumBytes); err != nil {
			return err
		}
		if err := r.AddRange(s.namesRange(), t.NamesStart, t.NamesStart+t.Count*layout.DirectoryNameLen); err != nil {
			return err
		}
	}
	return nil
}

func (m *Directory) Decode(res batch.Results, cfg *Config, doc *yaml.Node) error {
	for _, s := range m.sides() {
		numbers, ok1 := res.Get(s.numbersRange())
		names, ok2 := res.Get(s.namesRange())
		if !ok1 || !ok2 {
			continue
		}
		list, err := records.DecodeDirectory(numbers, names, s.table.Count)
		if err != nil {
			return err
		}
		if list == nil {
			list = []records.DirectoryEntry{}
		}
		if s.group {
			cfg.GroupDirectory = list
		} else {
			cfg.IndividualDirectory = list
		}
		if len(list) == 0 {
			continue
		}
		entries := make([]directoryEntry, 0, len(list))
		for _, e := range list {
			slot := e.Slot
			entries = append(entries, directoryEntry{Slot: &slot, Name: e.Name, MMSI: e.MMSI})
		}
		if err := appendValue(doc, s.key, entries); err != nil {
			return err
		}
	}
	return nil
}

// Encode keeps every entry in its slot, or the lowest free one, on top of
// the directory as last read.
func (m *Directory) Encode(doc *yaml.Node, wc *WriteContext) (bool, error) {
	wrote := false
	for _, s := range m.sides() {
		node := document.Lookup(doc, s.key)
		if node == nil {
			continue
		}
		if err := document.Expect(node, yaml.SequenceNode, s.key); err != nil {
			return false, err
		}
		t := s.table
		entries := make([]directoryEntry, len(node.Content))
		plan := make([]slotted, len(node.Content))
		for i, item := range node.Content {
			if err := document.Decode(item, &entries[i]); err != nil {
				return false, err
			}
			if err := records.ValidateMMSI(entries[i].MMSI, s.group); err != nil {
				return false, document.At(item, err)
			}
			plan[i] = slotted{node: item, subject: entries[i].MMSI, slot: entries[i].Slot}
		}
		slots, err := planSlots(s.key, "slot", node, plan, t.Count)
		if err != nil {
			return false, err
		}
		list := make([]records.DirectoryEntry, len(entries))
		for i, e := range entries {
			list[i] = records.DirectoryEntry{Slot: slots[i], Name: e.Name, MMSI: e.MMSI}
		}

		numbers := wc.baseline(s.numbersRange(), t.Count*layout.DirectoryNumBytes, ascii.Pad)
		names := wc.baseline(s.namesRange(), t.Count*layout.DirectoryNameLen, ascii.Pad)
		if err := records.EncodeDirectory(list, s.group, numbers, names, t.Count); err != nil {
			return false, document.At(node, err)
		}
		if err := wc.Writer.Prepare(s.numbersRange(), t.NumbersStart, numbers); err != nil {
			return false, err
		}
		if err := wc.Writer.Prepare(s.namesRange(), t.NamesStart, names); err != nil {
			return false, err
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Slot < list[j].Slot })
		if s.group {
			wc.Out.GroupDirectory = list
		} else {
			wc.Out.IndividualDirectory = list
		}
		wc.record(s.key, len(list), t.Count)
		wrote = true
	}
	return wrote, nil
}
