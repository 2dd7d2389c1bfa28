package provider

import "fmt"

// Registry maps a service-type tag to the Loader implementing it.
type Registry struct {
	loaders map[ServiceType]Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: map[ServiceType]Loader{}}
}

func (r *Registry) Register(st ServiceType, l Loader) {
	r.loaders[st] = l
}

func (r *Registry) Lookup(st ServiceType) (Loader, error) {
	l, ok := r.loaders[st]
	if !ok {
		return nil, fmt.Errorf("no loader registered for service type %q", st)
	}
	return l, nil
}
