package document

// NodeType is the closed set of document node kinds the engine tracks.
type NodeType int

const (
	// Cell is a computational block.
	Cell NodeType = iota
	// InlineCell is a computational span embedded in text.
	InlineCell
	// Select is an input choosing one of several options.
	Select
	// RangeInput is a slider over a numeric range.
	RangeInput
)

// IsComputational reports whether nodes of this type are evaluated.
func (t NodeType) IsComputational() bool {
	return t == Cell || t == InlineCell
}

// IsInput reports whether nodes of this type feed a named value.
func (t NodeType) IsInput() bool {
	return t == Select || t == RangeInput
}

func (t NodeType) String() string {
	switch t {
	case Cell:
		return "cell"
	case InlineCell:
		return "inline-cell"
	case Select:
		return "select"
	case RangeInput:
		return "range"
	}
	return "unknown"
}

// ParseNodeType maps the names used in document files onto a NodeType.
func ParseNodeType(s string) (NodeType, bool) {
	switch s {
	case "cell":
		return Cell, true
	case "inline-cell", "inline":
		return InlineCell, true
	case "select":
		return Select, true
	case "range", "range-input":
		return RangeInput, true
	}
	return 0, false
}

// Node is a document node relevant to the engine.
type Node struct {
	ID   string
	Type NodeType

	// Computational nodes.
	Language string
	Source   string
	Code     string

	// Input nodes.
	Name  string
	Value any
}

// Change is one batch of structural document events.
type Change struct {
	Created []*Node
	Deleted []*Node
	Updated []*Node
}

// Empty reports whether the change carries no events.
func (c Change) Empty() bool {
	return len(c.Created) == 0 && len(c.Deleted) == 0 && len(c.Updated) == 0
}
