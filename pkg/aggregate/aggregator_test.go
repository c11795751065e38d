package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var e2immuBuilds = []string{
	"e2immu-external-support",
	"e2immu-internal-graph",
	"e2immu-cst-impl",
	"e2immu-cst-io",
	"e2immu-cst-print",
	"e2immu-java-parser",
	"e2immu-java-bytecode",
	"e2immu-inspection-integration",
	"e2immu-shallow-analyzer",
}

var e2immuTest = Explicit{
	Ref("e2immu-external-support"),
	Disabled("e2immu-internal-graph"),
	Ref("e2immu-cst-impl"),
	Ref("e2immu-cst-io"),
	Ref("e2immu-cst-print"),
	Ref("e2immu-java-parser"),
	Ref("e2immu-java-bytecode"),
	Ref("e2immu-inspection-integration"),
	Ref("e2immu-shallow-analyzer"),
}

// recorder is an Executor that remembers every call and fails the configured builds.
type recorder struct {
	lock  sync.Mutex
	calls []TaskPath
	fail  map[string]error
}

func (r *recorder) RunOperation(ctx context.Context, build, op string) error {
	r.lock.Lock()
	r.calls = append(r.calls, TaskPath{Build: build, Op: op})
	r.lock.Unlock()

	return r.fail[build]
}

func newRegistry(t *testing.T, ids ...string) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Add(id, "test", "clean"))
	}
	return reg
}

func builds(paths []TaskPath) []string {
	result := make([]string, len(paths))
	for idx, path := range paths {
		result[idx] = path.Build
	}
	return result
}

func TestTestCompositeDependsOnEightBuilds(t *testing.T) {
	agg := New(newRegistry(t, e2immuBuilds...))

	test, err := agg.Register("test", e2immuTest)
	require.NoError(t, err)

	deps, err := test.Deps()
	require.NoError(t, err)
	require.Len(t, deps, 8)

	assert.ElementsMatch(t, []string{
		"e2immu-shallow-analyzer",
		"e2immu-external-support",
		"e2immu-cst-print",
		"e2immu-cst-io",
		"e2immu-cst-impl",
		"e2immu-java-parser",
		"e2immu-java-bytecode",
		"e2immu-inspection-integration",
	}, builds(deps))
	assert.NotContains(t, builds(deps), "e2immu-internal-graph")

	for _, dep := range deps {
		assert.Equal(t, "test", dep.Op)
	}
}

func TestCleanCompositeCoversAllIncludedBuilds(t *testing.T) {
	reg := newRegistry(t, "A", "B", "C")
	agg := New(reg)

	clean, err := agg.Register("clean", AllIncluded{})
	require.NoError(t, err)

	rec := &recorder{}
	report, err := clean.Run(context.Background(), rec, Sequential)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())

	assert.ElementsMatch(t, []TaskPath{
		{Build: "A", Op: "clean"},
		{Build: "B", Op: "clean"},
		{Build: "C", Op: "clean"},
	}, rec.calls)
}

func TestCleanPicksUpNewlyIncludedBuilds(t *testing.T) {
	reg := newRegistry(t, "A", "B")
	clean, err := New(reg).Register("clean", AllIncluded{})
	require.NoError(t, err)

	require.NoError(t, reg.Add("D", "clean"))

	deps, err := clean.Deps()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, builds(deps))
}

func TestUnknownBuildIsConfigurationError(t *testing.T) {
	agg := New(newRegistry(t, "A", "B"))

	_, err := agg.Register("test", Refs("A", "missing", "B"))
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "test", cfgErr.Composite)
	assert.Equal(t, []string{"missing"}, cfgErr.Unknown)

	_, found := agg.Lookup("test")
	assert.False(t, found)
}

func TestDisabledRefsAreNotResolved(t *testing.T) {
	agg := New(newRegistry(t, "A"))

	test, err := agg.Register("test", Explicit{Ref("A"), Disabled("not-included")})
	require.NoError(t, err)

	deps, err := test.Deps()
	require.NoError(t, err)
	assert.Equal(t, []TaskPath{{Build: "A", Op: "test"}}, deps)
}

func TestMissingOperationIsConfigurationError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("A", "test", "clean"))
	require.NoError(t, reg.Add("B", "clean"))

	_, err := New(reg).Register("test", Refs("A", "B"))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"B"}, cfgErr.Unknown)
}

func TestUnknownOperationsAreNotChecked(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("A"))

	_, err := New(reg).Register("anything", Refs("A"))
	assert.NoError(t, err)
}

func TestDuplicateCompositeIsRejected(t *testing.T) {
	agg := New(newRegistry(t, "A"))

	_, err := agg.Register("clean", AllIncluded{})
	require.NoError(t, err)

	_, err = agg.Register("clean", Refs("A"))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "clean", cfgErr.Composite)
}

func TestDuplicateRefsCollapse(t *testing.T) {
	test, err := New(newRegistry(t, "A", "B")).Register("test", Refs("B", "A", "B"))
	require.NoError(t, err)

	deps, err := test.Deps()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, builds(deps))
}

func TestRunFailsWhenAnyDependencyFails(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{fail: map[string]error{"e2immu-cst-io": boom}}

	test, err := New(newRegistry(t, e2immuBuilds...)).Register("test", e2immuTest)
	require.NoError(t, err)

	report, err := test.Run(context.Background(), rec, Scheduler{Parallelism: 1, Continue: true})
	require.Error(t, err)
	assert.False(t, report.Succeeded())
	assert.Len(t, rec.calls, 8)

	var failure *PropagatedFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "test", failure.Composite)
	assert.Equal(t, []TaskPath{{Build: "e2immu-cst-io", Op: "test"}}, failure.Tasks())
	assert.ErrorIs(t, err, boom)
}

func TestRunSucceedsWhenAllDependenciesSucceed(t *testing.T) {
	test, err := New(newRegistry(t, e2immuBuilds...)).Register("test", e2immuTest)
	require.NoError(t, err)

	report, err := test.Run(context.Background(), &recorder{}, Sequential)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, 8, report.Count(StatusSucceeded))
}

func TestRunWithoutDependenciesSucceeds(t *testing.T) {
	clean, err := New(NewRegistry()).Register("clean", AllIncluded{})
	require.NoError(t, err)

	report, err := clean.Run(context.Background(), &recorder{}, Sequential)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestRunResolvesBeforeExecuting(t *testing.T) {
	reg := newRegistry(t, "A", "B")
	clean, err := New(reg).Register("clean", AllIncluded{})
	require.NoError(t, err)

	// a build without the operation shows up after registration
	require.NoError(t, reg.Add("C", "test"))

	rec := &recorder{}
	report, err := clean.Run(context.Background(), rec, Sequential)
	assert.Nil(t, report)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, rec.calls)
}

func TestCompositesKeepDeclarationOrder(t *testing.T) {
	agg := New(newRegistry(t, "A"))
	_, err := agg.Register("test", Refs("A"))
	require.NoError(t, err)
	_, err = agg.Register("clean", AllIncluded{})
	require.NoError(t, err)

	names := []string{}
	for _, c := range agg.Composites() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"test", "clean"}, names)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add("A"))
	assert.Error(t, reg.Add("A"))
	assert.Error(t, reg.Add(""))
}
