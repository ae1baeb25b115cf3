package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// DefaultSymbol is the exported symbol a plugin binary must provide when the
// manifest does not name one explicitly.
const DefaultSymbol = "Plugin"

// Loader resolves a plugin binary into a Plugin implementation. symbol selects
// the exported identifier to look up; an empty value means DefaultSymbol.
type Loader interface {
	Load(path, symbol string) (Plugin, error)
}

// GoPluginLoader loads shared objects built with `go build -buildmode=plugin`.
type GoPluginLoader struct{}

// Load opens the shared object and resolves the named symbol. The symbol may
// be a Plugin value, a pointer to one, or a factory function returning one.
func (GoPluginLoader) Load(path, symbol string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}
	resolved, err := so.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("lookup symbol %s in %s: %w", symbol, path, err)
	}
	switch p := resolved.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil {
			return nil, fmt.Errorf("symbol %s is a nil plugin", symbol)
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, fmt.Errorf("symbol %s does not implement plugin.Plugin", symbol)
	}
}
