package document

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/hxctl/internal/testutil/testlog"
	"gopkg.in/yaml.v3"
)

func TestParseEmptyAndAppend(t *testing.T) {
	testlog.Start(t)
	doc, err := Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	node, err := Encode("366123456")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := Append(doc, "mmsi", node); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := Append(doc, "mmsi", node); err == nil {
		t.Fatalf("appending an existing key must fail")
	}
	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.TrimSpace(string(out)) != `mmsi: "366123456"` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseRejectsNonMapping(t *testing.T) {
	testlog.Start(t)
	_, err := Parse([]byte("- a\n- b\n"))
	if !errors.Is(err, ErrNotMapping) {
		t.Fatalf("expected ErrNotMapping, got %v", err)
	}
	var ne *NodeError
	if !errors.As(err, &ne) || ne.Line != 1 {
		t.Fatalf("expected position on error, got %#v", err)
	}
}

func TestLookupKeysAndExpect(t *testing.T) {
	testlog.Start(t)
	doc, err := Parse([]byte("mmsi: \"366123456\"\nroutes:\n  - HOME: [A, B]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := Keys(doc); len(got) != 2 || got[0] != "mmsi" || got[1] != "routes" {
		t.Fatalf("unexpected keys %v", got)
	}
	routes := Lookup(doc, "routes")
	if err := Expect(routes, yaml.SequenceNode, "routes"); err != nil {
		t.Fatalf("expect sequence: %v", err)
	}
	err = Expect(Lookup(doc, "mmsi"), yaml.SequenceNode, "mmsi")
	if !errors.Is(err, ErrNodeType) {
		t.Fatalf("expected ErrNodeType, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("error must carry the line: %v", err)
	}
	if Lookup(doc, "waypoints") != nil {
		t.Fatalf("missing key must be nil")
	}
}

func TestSaveLoad(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "radio.yaml")
	doc := New()
	node, _ := Encode([]map[string][]string{{"HOME": {"A", "B"}}})
	if err := Append(doc, "routes", node); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := Save(path, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var routes []map[string][]string
	if err := Decode(Lookup(loaded, "routes"), &routes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(routes) != 1 || len(routes[0]["HOME"]) != 2 {
		t.Fatalf("unexpected routes %+v", routes)
	}
}
