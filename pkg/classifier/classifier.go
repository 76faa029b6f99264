// Package classifier gives read and narrowly scoped write access to the
// hierarchical classifier tree the host materializes as an id-keyed table.
//
// The tree is separate from the folder hierarchy and its lifecycle belongs
// to the host: nodes appear in the table lazily and this package never
// creates or removes them. Nodes are immutable except for ParamValue. No
// locking is done; the cooperative execution model guarantees no other task
// interleaves mid-operation.
package classifier

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
)

// ErrUnknownNode marks a lookup for an id the table has not materialized.
var ErrUnknownNode = errors.New("classifier node not in table")

// ErrNotANode marks input that is not a recognized classifier node wrapper.
var ErrNotANode = errors.New("not a classifier node")

// Node is one node of the classifier tree.
type Node struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`

	// Code is the optional classifier code.
	Code string `mapstructure:"code"`

	// ParamValue is the only mutable field.
	ParamValue any `mapstructure:"paramValue"`

	// ParentID links to the parent node; empty at the root.
	ParentID string `mapstructure:"parentId"`
}

// FromRecord decodes a host-supplied node wrapper. Anything that is not a
// map carrying at least an id fails with ErrNotANode.
func FromRecord(raw any) (*Node, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotANode, raw)
	}
	// Host wrappers sometimes nest the node under "contents".
	if inner, ok := m["contents"].(map[string]any); ok {
		m = inner
	}

	var n Node
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &n,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotANode, err)
	}
	if n.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrNotANode)
	}
	return &n, nil
}

func asMap(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case *Node:
		// Already decoded; round-trip is the identity.
		if v == nil {
			return nil, false
		}
		return map[string]any{
			"id": v.ID, "name": v.Name, "code": v.Code,
			"paramValue": v.ParamValue, "parentId": v.ParentID,
		}, true
	default:
		return nil, false
	}
}

// Table is an explicit handle over the host-owned id→node mapping. It is
// passed into every operation instead of living as a process global.
type Table struct {
	nodes  map[string]*Node
	logger hclog.Logger
}

// NewTable creates an empty table. The host populates it lazily via Put.
func NewTable(logger hclog.Logger) *Table {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Table{
		nodes:  make(map[string]*Node),
		logger: logger.Named("classifier"),
	}
}

// Put materializes a node in the table, decoding raw host wrappers on the
// way in. Returns the stored node.
func (t *Table) Put(raw any) (*Node, error) {
	n, err := FromRecord(raw)
	if err != nil {
		return nil, err
	}
	t.nodes[n.ID] = n
	t.logger.Debug("node materialized", "id", n.ID, "name", n.Name)
	return n, nil
}

// Get resolves a node by id.
func (t *Table) Get(id string) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n, nil
}

// Parent follows the node's parent link. A root node yields (nil, nil); a
// parent id the table has not materialized is an error.
func (t *Table) Parent(n *Node) (*Node, error) {
	if n == nil {
		return nil, ErrNotANode
	}
	if n.ParentID == "" {
		return nil, nil
	}
	return t.Get(n.ParentID)
}

// SetParamValue performs the one in-place mutation the tree allows.
func (t *Table) SetParamValue(id string, value any) error {
	n, err := t.Get(id)
	if err != nil {
		return err
	}
	n.ParamValue = value
	return nil
}
