package aggregate

import "github.com/rotisserie/eris"

// BuildSet is the set of builds a composite may reference.
type BuildSet interface {
	// IDs lists the included builds in declaration order.
	IDs() []string
	// Operations lists what the build exposes. ok is false if the build is unknown;
	// a nil list means the operations aren't known and won't be checked.
	Operations(id string) (ops []string, ok bool)
}

// Registry is a static BuildSet
type Registry struct {
	ids []string
	ops map[string][]string
}

var _ BuildSet = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		ops: make(map[string][]string),
	}
}

// Add includes a build. ops may be nil if the build's operations are unknown.
func (r *Registry) Add(id string, ops ...string) error {
	if id == "" {
		return eris.New("included builds need an ID")
	}

	if _, present := r.ops[id]; present {
		return eris.Errorf("build %s was included twice", id)
	}

	r.ids = append(r.ids, id)
	r.ops[id] = ops
	return nil
}

func (r *Registry) IDs() []string {
	return r.ids
}

func (r *Registry) Operations(id string) ([]string, bool) {
	ops, ok := r.ops[id]
	return ops, ok
}

func exposes(builds BuildSet, id, op string) bool {
	ops, ok := builds.Operations(id)
	if !ok {
		return false
	}
	if ops == nil {
		return true
	}

	for _, item := range ops {
		if item == op {
			return true
		}
	}
	return false
}
