package syntax

import "sync"

// registryMu guards every map below. Registration happens at dialect-build
// time (typically from package init()), so the cost of a single mutex is
// invisible against the match engine's hot path, which never registers.
var registryMu sync.RWMutex

// nextKindID tracks the next available dynamic kind ID. Dynamic kinds start
// after maxBuiltin (999), mirroring the teacher's token.Register split.
var nextKindID = int32(maxBuiltin)

var dynamicNames = make(map[Kind]string)
var dynamicByName = make(map[string]Kind)

// classTypes maps a kind to the additional kinds it "is-a" for the purposes
// of recursive_crawl and rule is_type() checks (spec.md §3: "a column
// reference is also an identifier, etc."). A kind always includes itself.
var classTypes = make(map[Kind][]Kind)

// Register registers a new dialect-specific kind with the given name.
// Idiomatically called once from a dialect package's init().
func Register(name string) Kind {
	registryMu.Lock()
	defer registryMu.Unlock()
	if k, ok := dynamicByName[name]; ok {
		return k
	}
	nextKindID++
	k := Kind(nextKindID)
	dynamicNames[k] = name
	dynamicByName[name] = k
	return k
}

func getDynamicName(k Kind) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	name, ok := dynamicNames[k]
	return name, ok
}

// SetClassTypes declares that segments of kind k are also instances of
// every kind in parents, for is-a checks. Additive: later calls append.
func SetClassTypes(k Kind, parents ...Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	classTypes[k] = append(classTypes[k], parents...)
}

// ClassTypes returns the transitive set of kinds k is-a, including k itself.
func ClassTypes(k Kind) map[Kind]struct{} {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := map[Kind]struct{}{k: {}}
	var walk func(Kind)
	walk = func(cur Kind) {
		for _, p := range classTypes[cur] {
			if _, seen := out[p]; seen {
				continue
			}
			out[p] = struct{}{}
			walk(p)
		}
	}
	walk(k)
	return out
}
