package cache

// ScopedKeyer wraps a Keyer with a prefix for tenant isolation. The prefix
// goes after the namespace so that sweeps over [Namespace] still match.
//
// Example usage:
//
//	// Separate light and dark theme renders in a shared store
//	dark := NewScopedKeyer(NewDefaultKeyer(), "dark:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ImageKey generates a prefixed image key.
func (k *ScopedKeyer) ImageKey(identity, salt string, opts ImageKeyOpts) string {
	key := k.inner.ImageKey(identity, salt, opts)
	ns := Namespace + ":"
	if len(key) > len(ns) && key[:len(ns)] == ns {
		return ns + k.prefix + key[len(ns):]
	}
	return k.prefix + key
}
