package modules

import (
	"fmt"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	rangeMMSI = "mmsi"
	rangeATIS = "atis"
)

// Identity reads the station MMSI and, where present, the ATIS code. Both are
// programmed once by the dealer, so the module never writes them.
type Identity struct {
	layout *layout.Layout
}

func NewIdentity(l *layout.Layout) *Identity {
	return &Identity{layout: l}
}

func (m *Identity) Name() string { return "identity" }

func (m *Identity) AddRanges(r *batch.Reader) error {
	if err := r.AddRange(rangeMMSI, m.layout.MMSIAddress, m.layout.MMSIAddress+layout.MMSIBytes); err != nil {
		return err
	}
	if m.layout.ATISAddress != 0 {
		return r.AddRange(rangeATIS, m.layout.ATISAddress, m.layout.ATISAddress+layout.ATISBytes)
	}
	return nil
}

func (m *Identity) Decode(res batch.Results, cfg *Config, doc *yaml.Node) error {
	if b, ok := res.Get(rangeMMSI); ok {
		mmsi, err := records.DecodeMMSI(b)
		if err != nil {
			return err
		}
		cfg.MMSI = mmsi
		if mmsi != "" {
			if err := appendValue(doc, rangeMMSI, mmsi); err != nil {
				return err
			}
		}
	}
	if b, ok := res.Get(rangeATIS); ok {
		atis, err := records.DecodeATIS(b)
		if err != nil {
			return err
		}
		cfg.ATIS = atis
		if atis != "" {
			if err := appendValue(doc, rangeATIS, atis); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode only checks that identity keys of the document are well formed.
func (m *Identity) Encode(doc *yaml.Node, wc *WriteContext) (bool, error) {
	for key, digits := range map[string]int{rangeMMSI: layout.MMSIDigits, rangeATIS: layout.ATISDigits} {
		node := document.Lookup(doc, key)
		if node == nil {
			continue
		}
		if node.Kind != yaml.ScalarNode || len(node.Value) != digits || !ascii.IsDecimal(node.Value) {
			return false, document.At(node, records.ValidationError{
				Module:  "identity",
				Subject: key,
				Reason:  fmt.Sprintf("must be a %d-digit number", digits),
			})
		}
		log.Debug().Str("key", key).Msg("modules.Identity is read-only, value not written")
	}
	return false, nil
}

func appendValue(doc *yaml.Node, key string, v any) error {
	node, err := document.Encode(v)
	if err != nil {
		return err
	}
	return document.Append(doc, key, node)
}
