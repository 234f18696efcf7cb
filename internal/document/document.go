// Package document wraps the YAML tree exchanged with the user.
//
// A document is a yaml.v3 node tree whose root is a mapping. Config modules
// own one top-level key each; reading appends keys and never rewrites
// existing ones, writing only inspects the tree.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotMapping = errors.New("document: root is not a mapping")
	ErrNodeType   = errors.New("document: unexpected node type")
)

// NodeError attaches a source position to an error.
type NodeError struct {
	Line   int
	Column int
	Err    error
}

func (e *NodeError) Error() string {
	if e.Line == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("line %d col %d: %v", e.Line, e.Column, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// At ties err to the position of node. A nil err stays nil.
func At(node *yaml.Node, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) || node == nil {
		return err
	}
	return &NodeError{Line: node.Line, Column: node.Column, Err: err}
}

// Errorf builds a NodeError for node.
func Errorf(node *yaml.Node, format string, args ...any) error {
	return At(node, fmt.Errorf(format, args...))
}

// New returns an empty document.
func New() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

// Parse reads a document. Empty input yields an empty document.
func Parse(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	if _, err := Root(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load parses the document stored at path.
func Load(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal renders doc with two-space indentation.
func Marshal(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes doc to path.
func Save(path string, doc *yaml.Node) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("document: write %s: %w", path, err)
	}
	return nil
}

// Root returns the top-level mapping of doc.
func Root(doc *yaml.Node) (*yaml.Node, error) {
	if doc == nil {
		return nil, ErrNotMapping
	}
	node := doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			node.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, At(node, ErrNotMapping)
	}
	return node, nil
}

// Lookup returns the value stored under key, or nil.
func Lookup(doc *yaml.Node, key string) *yaml.Node {
	root, err := Root(doc)
	if err != nil {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}

// Keys lists the top-level keys in document order.
func Keys(doc *yaml.Node) []string {
	root, err := Root(doc)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

// Append adds key to the end of the document. An existing key is left alone
// and reported as an error.
func Append(doc *yaml.Node, key string, value *yaml.Node) error {
	root, err := Root(doc)
	if err != nil {
		return err
	}
	if Lookup(doc, key) != nil {
		return fmt.Errorf("document: key %q already present", key)
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	root.Content = append(root.Content, keyNode, value)
	return nil
}

// Encode converts v into a node tree.
func Encode(v any) (*yaml.Node, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return &node, nil
}

// Decode converts node into v, keeping the node position on failure.
func Decode(node *yaml.Node, v any) error {
	if err := node.Decode(v); err != nil {
		return At(node, err)
	}
	return nil
}

// Expect checks the kind of node.
func Expect(node *yaml.Node, kind yaml.Kind, what string) error {
	if node == nil || node.Kind != kind {
		return Errorf(node, "%w: %s must be a %s", ErrNodeType, what, kindName(kind))
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "node"
	}
}
