// Package classmap maintains the shared catalogue of code objects referenced
// by recorded events. Entries are deduplicated by qualified identity and the
// catalogue is read back as a tree when a recording is finalized.
package classmap

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// Ref identifies one instrumented function by its qualified path.
// Class is empty for package-level functions.
type Ref struct {
	Package  string
	Class    string
	Function string
	Static   bool
	Path     string
	Line     int
}

// QualifiedName returns the dotted identity used for deduplication.
func (r Ref) QualifiedName() string {
	if r.Class == "" {
		return r.Package + "." + r.Function
	}
	return r.Package + "." + r.Class + "." + r.Function
}

type funcEntry struct {
	static   bool
	location string
}

type classNode struct {
	functions map[string]funcEntry
}

type pkgNode struct {
	classes   map[string]*classNode
	functions map[string]funcEntry
}

// Tree is the lock-protected code-object catalogue shared by all goroutines.
// Registration is insert-if-absent; registering the same entity twice leaves
// a single node.
type Tree struct {
	mu       sync.Mutex
	packages map[string]*pkgNode
}

// NewTree creates an empty catalogue.
func NewTree() *Tree {
	return &Tree{packages: make(map[string]*pkgNode)}
}

// Register adds a function and its enclosing package/class nodes to the
// catalogue. It is safe for concurrent use and idempotent per qualified name.
func (t *Tree) Register(ref Ref) {
	if ref.Package == "" || ref.Function == "" {
		return
	}

	entry := funcEntry{static: ref.Static}
	if ref.Path != "" {
		entry.location = fmt.Sprintf("%s:%d", ref.Path, ref.Line)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pkg, ok := t.packages[ref.Package]
	if !ok {
		pkg = &pkgNode{
			classes:   make(map[string]*classNode),
			functions: make(map[string]funcEntry),
		}
		t.packages[ref.Package] = pkg
	}

	if ref.Class == "" {
		if _, exists := pkg.functions[ref.Function]; !exists {
			pkg.functions[ref.Function] = entry
		}
		return
	}

	class, ok := pkg.classes[ref.Class]
	if !ok {
		class = &classNode{functions: make(map[string]funcEntry)}
		pkg.classes[ref.Class] = class
	}
	if _, exists := class.functions[ref.Function]; !exists {
		class.functions[ref.Function] = entry
	}
}

// Size returns the number of registered functions.
func (t *Tree) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, pkg := range t.packages {
		n += len(pkg.functions)
		for _, class := range pkg.classes {
			n += len(class.functions)
		}
	}
	return n
}

// Snapshot returns a read-only view of the catalogue as a code-object tree.
// Iteration order is stable: nodes are sorted by name at every level, so two
// snapshots of the same catalogue are identical.
func (t *Tree) Snapshot() []*domain.CodeObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*domain.CodeObject, 0, len(t.packages))
	for _, name := range sortedKeys(t.packages) {
		pkg := t.packages[name]
		node := &domain.CodeObject{Name: name, Type: domain.CodeObjectPackage}

		for _, className := range sortedKeys(pkg.classes) {
			class := pkg.classes[className]
			classObj := &domain.CodeObject{Name: className, Type: domain.CodeObjectClass}
			for _, fnName := range sortedKeys(class.functions) {
				classObj.Children = append(classObj.Children, functionObject(fnName, class.functions[fnName]))
			}
			node.Children = append(node.Children, classObj)
		}

		for _, fnName := range sortedKeys(pkg.functions) {
			node.Children = append(node.Children, functionObject(fnName, pkg.functions[fnName]))
		}

		out = append(out, node)
	}
	return out
}

func functionObject(name string, entry funcEntry) *domain.CodeObject {
	return &domain.CodeObject{
		Name:     name,
		Type:     domain.CodeObjectFunction,
		Static:   entry.static,
		Location: entry.location,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
