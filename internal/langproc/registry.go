package langproc

import "fmt"

// Registry is an ordered set of processors, at most one per language name.
type Registry struct {
	processors []Processor
}

// NewRegistry returns a registry holding ps, in order. It panics if two processors share a name.
func NewRegistry(ps ...Processor) *Registry {
	r := &Registry{}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register appends p. It errors if a processor with the same name is already registered.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return fmt.Errorf("langproc: nil processor")
	}
	for _, existing := range r.processors {
		if existing.Name() == p.Name() {
			return fmt.Errorf("langproc: processor %q already registered", p.Name())
		}
	}
	r.processors = append(r.processors, p)
	return nil
}

// ForPath returns the first registered processor whose VerifyExtension accepts path, or nil.
func (r *Registry) ForPath(path string) Processor {
	if r == nil {
		return nil
	}
	for _, p := range r.processors {
		if p.VerifyExtension(path) {
			return p
		}
	}
	return nil
}

// Names returns the registered language names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.processors))
	for _, p := range r.processors {
		names = append(names, p.Name())
	}
	return names
}
