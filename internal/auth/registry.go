package auth

// Registry exposes the fixed set of configured OAuth providers.
// Populated once at startup; read-only afterwards.
type Registry struct {
	order     []string
	providers map[string]*Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
	}
}

// Register adds a provider. Registration order is preserved for listings.
func (r *Registry) Register(p *Provider) {
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns the provider with the given slug.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// List returns all providers in registration order.
func (r *Registry) List() []*Provider {
	out := make([]*Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Infos returns the redacted provider views in registration order.
func (r *Registry) Infos() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.order))
	for _, p := range r.List() {
		out = append(out, p.Info())
	}
	return out
}

// Names returns the registered provider slugs in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.providers)
}
