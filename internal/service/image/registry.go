package image

import "fmt"

// Registry holds the services of all configured domains by name.
type Registry struct {
	services map[string]*Service
}

// NewRegistry indexes services by domain name. Names must be unique.
func NewRegistry(services ...*Service) (*Registry, error) {
	r := &Registry{services: make(map[string]*Service, len(services))}
	for _, s := range services {
		if _, dup := r.services[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate image domain %q", s.Name())
		}
		r.services[s.Name()] = s
	}

	return r, nil
}

// Get returns the service of the named domain.
func (r *Registry) Get(name string) (*Service, bool) {
	s, ok := r.services[name]
	return s, ok
}

// Services returns every registered service.
func (r *Registry) Services() []*Service {
	out := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	return out
}
