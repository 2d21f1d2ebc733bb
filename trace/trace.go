// Package trace builds the hierarchical structural dump emitted alongside a
// decode: a tree of named records, each carrying some subset of bit_size,
// value, decoded_value, and description, serialized as indented JSON. Field
// order is preserved on marshal -- the closest teacher precedent for a type
// owning its own text rendering is CompressedBlock.String() in the bzip2
// scanner, here generalized to a full tree instead of one flat record.
package trace

import (
	"bytes"
	"encoding/json"
)

// Node is one record in the trace tree: an ordered sequence of key/value
// entries. Values may be int, uint, string, []byte (stored as a plain
// decimal array, not base64), *Node, or []*Node.
type Node struct {
	name    string
	entries []entry
}

type entry struct {
	key   string
	value interface{}
}

// NewRecord creates a detached Node, for building array-of-record fields
// (e.g. a CODE_LENGTH_TABLE entry) before attaching them with Sink.Array.
func NewRecord(name string) *Node {
	return &Node{name: name}
}

// Name returns the record's name, as given to Open or NewRecord.
func (n *Node) Name() string {
	return n.name
}

// Field appends a scalar or nested value under key.
func (n *Node) Field(key string, value interface{}) {
	if b, ok := value.([]byte); ok {
		ints := make([]int, len(b))
		for i, x := range b {
			ints[i] = int(x)
		}
		value = ints
	}
	n.entries = append(n.entries, entry{key, value})
}

// BitSize, Value, DecodedValue, and Description set the four conventional
// leaf fields named in the trace record shape.
func (n *Node) BitSize(v uint) *Node {
	n.Field("bit_size", v)
	return n
}

func (n *Node) Value(v interface{}) *Node {
	n.Field("value", v)
	return n
}

func (n *Node) DecodedValue(v interface{}) *Node {
	n.Field("decoded_value", v)
	return n
}

func (n *Node) Description(s string) *Node {
	n.Field("description", s)
	return n
}

// Array attaches a named list of records, e.g. a CODE_LENGTH_TABLE.
func (n *Node) Array(key string, items []*Node) {
	n.entries = append(n.entries, entry{key, items})
}

// Child attaches a named nested record directly, without going through a
// Sink -- used when a record is built off to the side (a table summary)
// and then spliced in once complete.
func (n *Node) Child(key string, child *Node) {
	n.entries = append(n.entries, entry{key, child})
}

// MarshalJSON renders the node as a JSON object with its entries in
// insertion order, which encoding/json's struct-based marshaling can't do
// for a dynamic field set.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range n.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Sink is a streaming builder over a tree of Nodes, with an open/close
// cursor mirroring a recursive-descent decode: Open descends into a new
// named child, Close returns to the parent. Verbose controls whether
// callers should additionally emit RAW_DATA/ENCODED_BIT_STREAM/
// DECOMPRESSED_DATA/CODE_LENGTH_TABLE/LITERAL_LENGTH_DISTANCE_TABLE
// sub-records; the Sink itself doesn't gate individual Field calls, callers
// check Sink.Verbose before producing the expensive ones.
type Sink struct {
	verbose bool
	root    *Node
	stack   []*Node
}

// NewSink returns a Sink whose root record is named rootName.
func NewSink(rootName string, verbose bool) *Sink {
	root := NewRecord(rootName)
	return &Sink{verbose: verbose, root: root, stack: []*Node{root}}
}

// Verbose reports whether the caller asked for raw-byte and per-symbol
// table dumps.
func (s *Sink) Verbose() bool {
	return s.verbose
}

func (s *Sink) top() *Node {
	return s.stack[len(s.stack)-1]
}

// Open starts a new named nested record under the current cursor and
// descends into it.
func (s *Sink) Open(name string) *Node {
	child := NewRecord(name)
	s.top().Child(name, child)
	s.stack = append(s.stack, child)
	return child
}

// Close returns the cursor to the parent of the currently open record.
// Closing the root appends the JSON_END sentinel field the reference trace
// always closes its root object with.
func (s *Sink) Close() {
	if len(s.stack) == 1 {
		s.root.Field("JSON_END", 0)
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// Field appends a field to the currently open record.
func (s *Sink) Field(key string, value interface{}) {
	s.top().Field(key, value)
}

// Array attaches a named list of records to the currently open record.
func (s *Sink) Array(key string, items []*Node) {
	s.top().Array(key, items)
}

// Serialize renders the full tree as indented JSON. Whitespace is not
// normative (only structure and values are); indentation exists purely for
// human readability of the output file.
func (s *Sink) Serialize() ([]byte, error) {
	raw, err := json.Marshal(s.root)
	if err != nil {
		return nil, err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return nil, err
	}
	return pretty.Bytes(), nil
}
