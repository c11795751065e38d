package aggregate

import (
	"context"

	"github.com/rs/zerolog"
)

// Aggregator registers composites against a set of included builds.
type Aggregator struct {
	builds     BuildSet
	composites map[string]*Composite
	order      []string
}

// Composite is an operation that succeeds iff the same-named operation of every selected
// build succeeds.
type Composite struct {
	Name      string
	Desc      string
	Selection Selection
	builds    BuildSet
}

func New(builds BuildSet) *Aggregator {
	return &Aggregator{
		builds:     builds,
		composites: make(map[string]*Composite),
	}
}

// Register declares the composite op over sel. The selection is resolved right away so
// unknown builds are reported at configuration time.
func (a *Aggregator) Register(op string, sel Selection) (*Composite, error) {
	if op == "" {
		return nil, &ConfigurationError{Reason: "composites need a name"}
	}

	if _, present := a.composites[op]; present {
		return nil, &ConfigurationError{Composite: op, Reason: "declared twice"}
	}

	if sel == nil {
		return nil, &ConfigurationError{Composite: op, Reason: "no dependencies declared"}
	}

	composite := &Composite{
		Name:      op,
		Selection: sel,
		builds:    a.builds,
	}

	if _, err := composite.Deps(); err != nil {
		return nil, err
	}

	a.composites[op] = composite
	a.order = append(a.order, op)
	return composite, nil
}

// Lookup returns the composite with the given name
func (a *Aggregator) Lookup(op string) (*Composite, bool) {
	composite, ok := a.composites[op]
	return composite, ok
}

// Composites returns all registered composites in declaration order
func (a *Aggregator) Composites() []*Composite {
	result := make([]*Composite, len(a.order))
	for idx, name := range a.order {
		result[idx] = a.composites[name]
	}
	return result
}

// Deps resolves the composite's dependencies against the current build set.
func (c *Composite) Deps() ([]TaskPath, error) {
	ids, err := c.Selection.Resolve(c.builds)
	if err != nil {
		if cfgErr, ok := err.(*ConfigurationError); ok && cfgErr.Composite == "" {
			cfgErr.Composite = c.Name
		}
		return nil, err
	}

	var missingOp []string
	result := make([]TaskPath, len(ids))
	for idx, id := range ids {
		if !exposes(c.builds, id, c.Name) {
			missingOp = append(missingOp, id)
		}
		result[idx] = TaskPath{Build: id, Op: c.Name}
	}

	if len(missingOp) > 0 {
		return nil, &ConfigurationError{
			Composite: c.Name,
			Unknown:   missingOp,
			Reason:    "no task " + c.Name + " in included build",
		}
	}
	return result, nil
}

// Run executes the composite. The dependency set is resolved before anything runs; a
// resolution failure returns a *ConfigurationError and a nil report. If any dependency
// fails, the report is returned together with a *PropagatedFailure.
func (c *Composite) Run(ctx context.Context, exec Executor, sched Scheduler) (*Report, error) {
	deps, err := c.Deps()
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("composite", c.Name).
		Int("deps", len(deps)).
		Msgf("running %s", c.Name)

	report := &Report{
		Composite: c.Name,
		Results:   sched.Schedule(ctx, deps, exec),
	}
	return report, report.failure()
}
