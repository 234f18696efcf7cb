package modules

import (
	"fmt"

	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/records"
	"gopkg.in/yaml.v3"
)

// slotted is one document entry that may pin its table slot.
type slotted struct {
	node    *yaml.Node
	subject string
	slot    *int
}

// planSlots gives every entry a slot of a table of count slots. Pinned
// entries keep theirs and the rest take the lowest free slots in document
// order. field names the document key that pins a slot; seq is the
// sequence holding the entries.
func planSlots(module, field string, seq *yaml.Node, entries []slotted, count int) ([]int, error) {
	if len(entries) > count {
		return nil, document.At(seq, records.ValidationError{
			Module: module,
			Reason: fmt.Sprintf("too many entries (found %d, max is %d)", len(entries), count),
		})
	}
	taken := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.slot == nil {
			continue
		}
		slot := *e.slot
		if slot < 0 || slot >= count {
			return nil, document.At(e.node, records.ValidationError{
				Module:  module,
				Subject: e.subject,
				Reason:  fmt.Sprintf("%s %d out of range 0..%d", field, slot, count-1),
			})
		}
		if taken[slot] {
			return nil, document.At(e.node, records.ValidationError{
				Module:  module,
				Subject: e.subject,
				Reason:  fmt.Sprintf("%s %d used twice", field, slot),
			})
		}
		taken[slot] = true
	}
	slots := make([]int, len(entries))
	next := 0
	for i, e := range entries {
		if e.slot != nil {
			slots[i] = *e.slot
			continue
		}
		for taken[next] {
			next++
		}
		taken[next] = true
		slots[i] = next
	}
	return slots, nil
}
