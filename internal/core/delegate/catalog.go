package delegate

import "sort"

// Catalog maps rule-module kinds to constructors.
type Catalog struct {
	kinds map[string]func() Delegate
}

// DefaultCatalog knows the built-in rule modules.
func DefaultCatalog() *Catalog {
	return &Catalog{kinds: map[string]func() Delegate{
		KindBase:      NewBase,
		KindAuditable: NewAuditable,
		KindLimitable: NewLimitable,
	}}
}

// Lookup builds the delegate of the given kind.
func (c *Catalog) Lookup(kind string) (Delegate, bool) {
	newFn, ok := c.kinds[kind]
	if !ok {
		return nil, false
	}
	return newFn(), true
}

// Kinds returns the known kinds in sorted order.
func (c *Catalog) Kinds() []string {
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
