package providers

import (
	"fmt"
	"strings"

	"github.com/pasky/muaddib-sub002/internal/agent"
)

// Router implements agent.Resolver over a set of named ModelAdapters,
// keyed by the provider config's name from internal/config (e.g.
// "anthropic"). A model spec must be qualified as "<provider>:<identifier>"
// (spec §6); Default names the provider config validation falls back to
// when quoting the qualification error, but it no longer lets an
// unqualified spec resolve silently.
type Router struct {
	Default  string
	Adapters map[string]agent.ModelAdapter
}

func NewRouter(defaultProvider string, adapters map[string]agent.ModelAdapter) *Router {
	return &Router{Default: defaultProvider, Adapters: adapters}
}

func (r *Router) Resolve(modelName string) (agent.ModelAdapter, error) {
	i := strings.IndexByte(modelName, ':')
	if i < 0 {
		return nil, fmt.Errorf("providers: model %q is not qualified as provider:identifier (default provider %q)", modelName, r.Default)
	}
	provider := modelName[:i]
	adapter, ok := r.Adapters[provider]
	if !ok {
		return nil, fmt.Errorf("providers: no adapter configured for provider %q (model %q)", provider, modelName)
	}
	return adapter, nil
}
