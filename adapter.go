// Package treefs contains the core tree abstraction shared by every backing store:
// the [Node] contract, its optional capabilities, the error taxonomy and the
// pattern driven walkers [List] and [ResolvePath].
package treefs

// RootProvider builds the root of a tree from a raw JSON source definition.
// Source definitions carry a "type" field selecting the provider, see the adapters package.
type RootProvider interface {
	NewRoot(raw []byte) (Node, error)
}

// RootProviderFunc adapts a function to [RootProvider].
type RootProviderFunc func(raw []byte) (Node, error)

func (f RootProviderFunc) NewRoot(raw []byte) (Node, error) {
	return f(raw)
}
