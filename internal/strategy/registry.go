package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/afuentes7/kalshibot/internal/ports"
)

// Factory construye una estrategia a partir de la config.
type Factory func(cfg Config) ports.Strategy

var (
	regMu     sync.Mutex
	factories = map[string]Factory{}
)

// Register añade una factory al registro. Panic si el nombre ya existe;
// eso es un bug de inicialización, no un error de runtime.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("strategy.Register: duplicate %q", name))
	}
	factories[name] = f
}

// Lookup resuelve un spec "name" o "name:variant" a su factory. La
// variante se ignora salvo que esté registrada como "name:variant".
func Lookup(spec string) (Factory, error) {
	regMu.Lock()
	defer regMu.Unlock()

	if f, ok := factories[spec]; ok {
		return f, nil
	}
	if base, _, found := strings.Cut(spec, ":"); found {
		if f, ok := factories[base]; ok {
			return f, nil
		}
	}

	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("strategy.Lookup: unknown strategy %q (have %s)", spec, strings.Join(names, ", "))
}

func init() {
	Register("maker", func(cfg Config) ports.Strategy { return New(cfg) })
}
