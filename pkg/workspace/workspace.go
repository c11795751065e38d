// Package workspace binds a root build script and the builds it includes. A Workspace is
// both the build set composites are resolved against and the executor running their
// dependencies.
package workspace

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/e2immu/e2build/pkg/aggregate"
	"github.com/e2immu/e2build/pkg/buildsys"
)

// DefaultScript is the name of the build script every build carries
const DefaultScript = "tasks.star"

type Options struct {
	// Root is the directory containing the root script
	Root string
	// Script is the file name of the build scripts, defaults to DefaultScript
	Script string
	// Options are the option=value pairs passed to every script
	Options map[string]string
	// CacheDir stores the configuration cache. Relative paths are resolved against Root.
	// The cache is disabled if this is empty. A cached build is configured again when its
	// script, directory, options, read_yaml() files or getenv() values change; execute()
	// output is not tracked.
	CacheDir string

	DryRun bool
	Force  bool
	Stdout io.Writer
	Stderr io.Writer
}

// Build is an included build with the tasks its script declared
type Build struct {
	ID     string
	Dir    string
	Script string
	Tasks  buildsys.TaskList
	Cached bool
}

type Workspace struct {
	opts       Options
	root       *buildsys.Script
	builds     map[string]*Build
	order      []string
	aggregator *aggregate.Aggregator
}

var (
	_ aggregate.BuildSet = (*Workspace)(nil)
	_ aggregate.Executor = (*Workspace)(nil)
)

// Load evaluates the root script and the script of every included build, then registers
// the declared composites. Configuration errors are returned before anything runs.
func Load(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.Script == "" {
		opts.Script = DefaultScript
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	opts.Root = root

	if opts.CacheDir != "" && !filepath.IsAbs(opts.CacheDir) {
		opts.CacheDir = filepath.Join(root, opts.CacheDir)
	}

	script, err := buildsys.RunScript(ctx, filepath.Join(root, opts.Script), root, opts.Options, true)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		opts:   opts,
		root:   script,
		builds: make(map[string]*Build, len(script.Includes)),
		order:  make([]string, 0, len(script.Includes)),
	}

	for _, include := range script.Includes {
		build, err := ws.loadBuild(ctx, include)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to configure included build %s", include.ID)
		}

		ws.builds[build.ID] = build
		ws.order = append(ws.order, build.ID)
	}

	ws.aggregator = aggregate.New(ws)
	for _, decl := range script.Composites {
		if _, present := script.Tasks[decl.Name]; present {
			return nil, &aggregate.ConfigurationError{
				Composite: decl.Name,
				Reason:    "the root build declares a task with the same name",
			}
		}

		composite, err := ws.aggregator.Register(decl.Name, decl.Selection)
		if err != nil {
			return nil, err
		}
		composite.Desc = decl.Desc
	}

	return ws, nil
}

func (w *Workspace) loadBuild(ctx context.Context, include buildsys.Include) (*Build, error) {
	logger := zerolog.Ctx(ctx).With().Str("build", include.ID).Logger()
	build := &Build{
		ID:     include.ID,
		Dir:    include.Dir,
		Script: filepath.Join(include.Dir, w.opts.Script),
	}

	var cacheFile string
	if w.opts.CacheDir != "" {
		cacheFile = filepath.Join(w.opts.CacheDir, include.ID+".cache")

		if tasks, ok := buildsys.ReadFreshCache(cacheFile, build.Script, build.Dir, w.opts.Options); ok {
			logger.Debug().Msg("using cached configuration")
			build.Tasks = tasks
			build.Cached = true
			return build, nil
		}
	}

	script, err := buildsys.RunScript(logger.WithContext(ctx), build.Script, build.Dir, w.opts.Options, true)
	if err != nil {
		return nil, err
	}

	if len(script.Includes) > 0 {
		return nil, eris.Errorf("%s includes other builds but only the root script may do that", build.Script)
	}

	if len(script.Composites) > 0 {
		logger.Warn().Msgf("ignoring %d composite(s) declared in an included build", len(script.Composites))
	}
	build.Tasks = script.Tasks

	if cacheFile != "" {
		err = os.MkdirAll(w.opts.CacheDir, 0o770)
		if err == nil {
			err = buildsys.WriteCache(cacheFile, buildsys.CacheKeyFor(script, build.Dir, w.opts.Options), build.Tasks)
		}

		if err != nil {
			logger.Warn().Err(err).Msg("failed to write the configuration cache")
		}
	}

	return build, nil
}

// Root returns the directory of the root script
func (w *Workspace) Root() string {
	return w.opts.Root
}

// RootTasks returns the tasks declared by the root script
func (w *Workspace) RootTasks() buildsys.TaskList {
	return w.root.Tasks
}

// Options returns the options declared by the root script
func (w *Workspace) Options() map[string]buildsys.ScriptOption {
	return w.root.Options
}

// Builds returns the included builds in declaration order
func (w *Workspace) Builds() []*Build {
	result := make([]*Build, len(w.order))
	for idx, id := range w.order {
		result[idx] = w.builds[id]
	}
	return result
}

func (w *Workspace) Build(id string) (*Build, bool) {
	build, ok := w.builds[id]
	return build, ok
}

func (w *Workspace) Composites() []*aggregate.Composite {
	return w.aggregator.Composites()
}

func (w *Workspace) Lookup(name string) (*aggregate.Composite, bool) {
	return w.aggregator.Lookup(name)
}

// IDs implements aggregate.BuildSet
func (w *Workspace) IDs() []string {
	return append([]string(nil), w.order...)
}

// Operations implements aggregate.BuildSet. The operations are the build's task names.
func (w *Workspace) Operations(id string) ([]string, bool) {
	build, ok := w.builds[id]
	if !ok {
		return nil, false
	}

	ops := build.Tasks.Names()
	sort.Strings(ops)
	return ops, true
}

func (w *Workspace) runOptions() buildsys.RunOptions {
	return buildsys.RunOptions{
		DryRun: w.opts.DryRun,
		Force:  w.opts.Force,
		Stdout: w.opts.Stdout,
		Stderr: w.opts.Stderr,
	}
}

// RunOperation implements aggregate.Executor by running the task op of the given build.
func (w *Workspace) RunOperation(ctx context.Context, id, op string) error {
	build, ok := w.builds[id]
	if !ok {
		return eris.Errorf("unknown build %s", id)
	}

	logger := zerolog.Ctx(ctx).With().Str("build", id).Logger()
	return buildsys.RunTask(logger.WithContext(ctx), build.Dir, op, build.Tasks, w.runOptions())
}

// Run executes the composite name. If there's no such composite, the root task with that
// name is run instead and reported as ":name".
func (w *Workspace) Run(ctx context.Context, name string, sched aggregate.Scheduler) (*aggregate.Report, error) {
	if composite, ok := w.aggregator.Lookup(name); ok {
		return composite.Run(ctx, w, sched)
	}

	if _, ok := w.root.Tasks[name]; !ok {
		return nil, eris.Errorf("neither a composite nor a task named %s exists", name)
	}

	start := time.Now()
	err := buildsys.RunTask(ctx, w.opts.Root, name, w.root.Tasks, w.runOptions())
	result := aggregate.Result{
		Task:     aggregate.TaskPath{Op: name},
		Status:   aggregate.StatusSucceeded,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = aggregate.StatusFailed
	}

	if sched.Observer != nil {
		sched.Observer(result)
	}

	return &aggregate.Report{Composite: name, Results: []aggregate.Result{result}}, err
}
