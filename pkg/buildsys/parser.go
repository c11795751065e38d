package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	envReads     map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	tasks        []*Task
	includes     []Include
	composites   []CompositeDecl
	initPhase    bool
}

// reservedNames can't be used for tasks or composites
var reservedNames = map[string]bool{
	"configure": true,
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		value, ok := item.(starlark.String)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
		result = append(result, value.GoString())
	}
	return result, nil
}

func shellWord(value string) *syntax.Word {
	var part syntax.WordPart
	if strings.ContainsAny(value, " $'") {
		part = &syntax.SglQuoted{Value: value}
	} else {
		part = &syntax.Lit{Value: value}
	}

	return &syntax.Word{Parts: []syntax.WordPart{part}}
}

// processCmdParts turns ("VAR=value", "cmd", "arg", path) into a single shell call.
// Leading strings containing "=" become variable assignments.
func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		envVars = append(envVars, value.GoString())
	}

	cmd := new(syntax.CallExpr)
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	}

	args := parts[len(envVars):]
	cmd.Args = make([]*syntax.Word, len(args))
	for a, arg := range args {
		var encodedValue string

		switch value := arg.(type) {
		case starlark.String:
			encodedValue = value.GoString()
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				if relValue, err := filepath.Rel(base, encodedValue); err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		cmd.Args[a] = shellWord(encodedValue)
	}

	return cmd, nil
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.Errorf("%s: can only be called during the init phase (in the global scope)", fn.Name())
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	if value, ok := ctx.optionValues[name]; ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func cmdFromValue(item starlark.Value, parser *syntax.Parser, printer *syntax.Printer, base string) (TaskCmd, error) {
	var parts starlark.Tuple

	switch value := item.(type) {
	case starlark.String:
		return TaskCmdScript{Content: value.GoString()}, nil
	case *Task:
		return TaskCmdTaskRef{Task: value}, nil
	case starlark.Tuple:
		parts = value
	case *starlark.List:
		parts = make(starlark.Tuple, value.Len())
		for idx := range parts {
			parts[idx] = value.Index(idx)
		}
	default:
		return nil, eris.Errorf("unexpected type %s. Only strings, tuples, lists and tasks are valid", item.Type())
	}

	cmd, err := processCmdParts(parts, parser, base)
	if err != nil {
		return nil, err
	}

	buffer := strings.Builder{}
	if err = printer.Print(&buffer, cmd); err != nil {
		return nil, err
	}

	return TaskCmdScript{Content: buffer.String()}, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	task := new(Task)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short??", &task.Short, "hidden?", &task.Hidden,
		"desc?", &task.Desc, "deps?", &deps, "base?", &task.Base, "skip_if_exists?", &skipIfExists, "inputs?",
		&inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	}

	if reservedNames[task.Short] {
		return nil, eris.Errorf(`the task name "%s" is reserved, please use a different name`, task.Short)
	}

	ctx := getCtx(thread)
	task.Env = map[string]string{}
	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(ctx, task.Base)

	if task.Deps, err = starlarkIterable2stringSlice(deps, "deps"); err != nil {
		return nil, err
	}

	if task.SkipIfExists, err = starlarkIterable2stringSlice(skipIfExists, "skip_if_exists"); err != nil {
		return nil, err
	}

	if task.Inputs, err = starlarkIterable2stringSlice(inputs, "inputs"); err != nil {
		return nil, err
	}

	if task.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs"); err != nil {
		return nil, err
	}

	if env != nil {
		for _, item := range env.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", item[0].Type())
			}

			value, ok := item[1].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", item[1].Type(), key.GoString())
			}
			task.Env[key.GoString()] = value.GoString()
		}
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()
	task.Cmds = make([]TaskCmd, 0)
	if cmds != nil {
		for idx := 0; idx < cmds.Len(); idx++ {
			cmd, err := cmdFromValue(cmds.Index(idx), parser, printer, task.Base)
			if err != nil {
				return nil, eris.Wrapf(err, "%s: failed to process command #%d", fn.Name(), idx)
			}
			task.Cmds = append(task.Cmds, cmd)
		}
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	if !task.Hidden {
		ctx.tasks = append(ctx.tasks, task)
	}
	return task, nil
}

// recordInputs stores the files and environment variables the script read
func (ctx *parserCtx) recordInputs(script *Script) {
	script.Inputs = make([]string, 0, len(ctx.yamlCache))
	for file := range ctx.yamlCache {
		script.Inputs = append(script.Inputs, file)
	}
	sort.Strings(script.Inputs)
	script.EnvReads = ctx.envReads
}

func evalErr(err error, ctx *parserCtx, what string) error {
	if evalError, ok := err.(*starlark.EvalError); ok {
		return eris.Errorf("failed to %s %s:\n%s", what, simplifyPath(ctx, ctx.filepath), evalError.Backtrace())
	}
	return eris.Wrapf(err, "failed to %s %s", what, simplifyPath(ctx, ctx.filepath))
}

// RunScript executes a build script and returns the declared options and includes. If doConfigure
// is true, the script's configure function is called and the declared tasks and composites are
// collected as well.
func RunScript(ctx context.Context, filename, projectRoot string, options map[string]string, doConfigure bool) (*Script, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	builtins := starlark.StringDict{
		"OS":              starlark.String(runtime.GOOS),
		"ARCH":            starlark.String(runtime.GOARCH),
		"info":            starlark.NewBuiltin("info", logBuiltin(zerolog.InfoLevel)),
		"warn":            starlark.NewBuiltin("warn", logBuiltin(zerolog.WarnLevel)),
		"error":           starlark.NewBuiltin("error", starError),
		"resolve_path":    starlark.NewBuiltin("resolve_path", resolvePath),
		"option":          starlark.NewBuiltin("option", option),
		"getenv":          starlark.NewBuiltin("getenv", getenv),
		"setenv":          starlark.NewBuiltin("setenv", setenv),
		"prepend_path":    starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":       starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":           starlark.NewBuiltin("isdir", statBuiltin(os.FileInfo.IsDir)),
		"isfile":          starlark.NewBuiltin("isfile", statBuiltin(func(info os.FileInfo) bool { return info.Mode().IsRegular() })),
		"execute":         starlark.NewBuiltin("execute", starExec),
		"task":            starlark.NewBuiltin("task", task),
		"include_build":   starlark.NewBuiltin("include_build", includeBuild),
		"include_builds":  starlark.NewBuiltin("include_builds", includeBuilds),
		"build":           starlark.NewBuiltin("build", buildRef),
		"included_builds": starlark.NewBuiltin("included_builds", includedBuilds),
		"composite":       starlark.NewBuiltin("composite", composite),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		envReads:     make(map[string]string),
		tasks:        make([]*Task, 0),
		yamlCache:    make(map[string]interface{}),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read file %s", filename)
	}

	globals, err := starlark.ExecFile(thread, simplifyPath(&threadCtx, filename), content, builtins)
	if err != nil {
		return nil, evalErr(err, &threadCtx, "execute")
	}

	script := &Script{
		Path:     filename,
		Tasks:    TaskList{},
		Options:  threadCtx.options,
		Includes: threadCtx.includes,
	}
	if !doConfigure {
		return script, nil
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, eris.Errorf("%s did not declare a configure function", simplifyPath(&threadCtx, filename))
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s did declare a configure value but it's not a function", simplifyPath(&threadCtx, filename))
	}

	threadCtx.initPhase = false
	if _, err = starlark.Call(thread, configureFunc, nil, nil); err != nil {
		return nil, evalErr(err, &threadCtx, "configure")
	}

	for _, task := range threadCtx.tasks {
		if _, present := script.Tasks[task.Short]; present {
			return nil, eris.Errorf("%s declared the task %s twice", simplifyPath(&threadCtx, filename), task.Short)
		}
		script.Tasks[task.Short] = task

		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}
	}

	script.Composites = threadCtx.composites
	threadCtx.recordInputs(script)
	return script, nil
}
