package domain

// Code object types, nested package > class > function.
const (
	CodeObjectPackage  = "package"
	CodeObjectClass    = "class"
	CodeObjectFunction = "function"
)

// CodeObject is a discovered package, class, or function entity referenced
// by at least one event. Function nodes carry a source location and a static
// flag; container nodes carry children.
type CodeObject struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Static   bool          `json:"static,omitempty"`
	Location string        `json:"location,omitempty"`
	Children []*CodeObject `json:"children,omitempty"`
}
