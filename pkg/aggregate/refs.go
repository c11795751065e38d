package aggregate

import (
	"fmt"
	"strings"
)

// BuildRef points a composite at an included build. Disabled references stay in the
// declaration but are neither resolved nor run.
type BuildRef struct {
	ID      string
	Enabled bool
}

// Ref returns an enabled reference
func Ref(id string) BuildRef {
	return BuildRef{ID: id, Enabled: true}
}

// Disabled returns a reference that is kept in the list but skipped
func Disabled(id string) BuildRef {
	return BuildRef{ID: id}
}

func (r BuildRef) String() string {
	if r.Enabled {
		return r.ID
	}
	return r.ID + " (disabled)"
}

// TaskPath addresses one operation of one included build.
type TaskPath struct {
	Build string
	Op    string
}

func (p TaskPath) String() string {
	return p.Build + ":" + p.Op
}

// Selection decides which included builds a composite fans out to.
type Selection interface {
	// Resolve returns the selected build IDs in declaration order.
	Resolve(builds BuildSet) ([]string, error)
	String() string
}

// Explicit selects a fixed, ordered list of builds.
type Explicit []BuildRef

// Refs builds an Explicit selection with every ID enabled
func Refs(ids ...string) Explicit {
	result := make(Explicit, len(ids))
	for idx, id := range ids {
		result[idx] = Ref(id)
	}
	return result
}

func (e Explicit) Resolve(builds BuildSet) ([]string, error) {
	known := make(map[string]bool)
	for _, id := range builds.IDs() {
		known[id] = true
	}

	result := make([]string, 0, len(e))
	seen := make(map[string]bool, len(e))
	var unknown []string
	for _, ref := range e {
		if !ref.Enabled || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true

		if !known[ref.ID] {
			unknown = append(unknown, ref.ID)
			continue
		}
		result = append(result, ref.ID)
	}

	if len(unknown) > 0 {
		return nil, &ConfigurationError{
			Unknown: unknown,
			Reason:  "not an included build",
		}
	}
	return result, nil
}

// Enabled returns the IDs of the enabled references, in order.
func (e Explicit) Enabled() []string {
	result := make([]string, 0, len(e))
	for _, ref := range e {
		if ref.Enabled {
			result = append(result, ref.ID)
		}
	}
	return result
}

func (e Explicit) String() string {
	parts := make([]string, len(e))
	for idx, ref := range e {
		parts[idx] = ref.String()
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

// AllIncluded selects every included build known at the time it's resolved.
type AllIncluded struct{}

func (AllIncluded) Resolve(builds BuildSet) ([]string, error) {
	ids := builds.IDs()
	result := make([]string, len(ids))
	copy(result, ids)
	return result, nil
}

func (AllIncluded) String() string {
	return "<all included builds>"
}
