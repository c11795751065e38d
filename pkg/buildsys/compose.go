package buildsys

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"

	"github.com/e2immu/e2build/pkg/aggregate"
)

func addInclude(ctx *parserCtx, id, dir string) error {
	for _, item := range ctx.includes {
		if item.ID == id {
			return eris.Errorf("the build %s was already included from %s", id, simplifyPath(ctx, item.Dir))
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return eris.Wrapf(err, "failed to check included build %s", id)
	}

	if !info.IsDir() {
		return eris.Errorf("included build %s: %s is not a directory", id, simplifyPath(ctx, dir))
	}

	ctx.includes = append(ctx.includes, Include{ID: id, Dir: dir})
	return nil
}

func includeBuild(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	var path starlark.Value

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "id", &id, "path?", &path); err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.Errorf("%s: can only be called during the init phase (in the global scope)", fn.Name())
	}

	if id == "" {
		return nil, eris.Errorf("%s: the build ID can't be empty", fn.Name())
	}

	dir := normalizePath(ctx, id)
	if path != nil && path != starlark.None {
		value, err := pathArg(fn.Name(), path)
		if err != nil {
			return nil, err
		}
		dir = normalizePath(ctx, value)
	}

	if err := addInclude(ctx, id, dir); err != nil {
		return nil, err
	}
	return BuildRef(aggregate.Ref(id)), nil
}

// includeBuilds includes every directory matching the pattern that has a build script of
// its own. The directory name becomes the build ID.
func includeBuilds(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string

	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &pattern); err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.Errorf("%s: can only be called during the init phase (in the global scope)", fn.Name())
	}

	matches, err := expandPattern(syntax.NewParser(), normalizePath(ctx, pattern))
	if err != nil {
		return nil, err
	}

	scriptName := filepath.Base(ctx.filepath)
	ownDir := filepath.Dir(ctx.filepath)
	refs := make([]starlark.Value, 0, len(matches))
	for _, match := range matches {
		if match == ownDir {
			continue
		}

		info, err := os.Stat(filepath.Join(match, scriptName))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		id := filepath.Base(match)
		if err = addInclude(ctx, id, match); err != nil {
			return nil, err
		}
		refs = append(refs, BuildRef(aggregate.Ref(id)))
	}

	if len(refs) == 0 {
		warn(thread, "%s: %s didn't match any build", fn.Name(), pattern)
	}
	return starlark.NewList(refs), nil
}

func buildRef(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ref := aggregate.BuildRef{Enabled: true}

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "id", &ref.ID, "enabled?", &ref.Enabled); err != nil {
		return nil, err
	}

	if ref.ID == "" {
		return nil, eris.Errorf("%s: the build ID can't be empty", fn.Name())
	}
	return BuildRef(ref), nil
}

func includedBuilds(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return allBuilds{}, nil
}

func selectionFromValue(value starlark.Value) (aggregate.Selection, error) {
	if _, ok := value.(allBuilds); ok {
		return aggregate.AllIncluded{}, nil
	}

	iterable, ok := value.(starlarkIterable)
	if !ok {
		return nil, eris.Errorf("deps must be a list or included_builds() but got %s", value.Type())
	}

	result := make(aggregate.Explicit, 0, iterable.Len())
	iter := iterable.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch item := item.(type) {
		case starlark.String:
			result = append(result, aggregate.Ref(item.GoString()))
		case BuildRef:
			result = append(result, aggregate.BuildRef(item))
		default:
			return nil, eris.Errorf("deps may only contain build IDs and build() values but found %s", item.Type())
		}
	}
	return result, nil
}

func composite(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var decl CompositeDecl
	var deps starlark.Value

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &decl.Name, "deps", &deps, "desc?", &decl.Desc); err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.Errorf("%s: can only be called from configure()", fn.Name())
	}

	if decl.Name == "" || reservedNames[decl.Name] {
		return nil, eris.Errorf(`%s: "%s" is not a valid composite name`, fn.Name(), decl.Name)
	}

	for _, item := range ctx.composites {
		if item.Name == decl.Name {
			return nil, eris.Errorf("%s: %s was already declared", fn.Name(), decl.Name)
		}
	}

	selection, err := selectionFromValue(deps)
	if err != nil {
		return nil, eris.Wrapf(err, "%s %s", fn.Name(), decl.Name)
	}
	decl.Selection = selection

	if explicit, ok := selection.(aggregate.Explicit); ok && len(explicit.Enabled()) == 0 {
		warn(thread, "%s: %s has no enabled dependencies", fn.Name(), decl.Name)
	}

	ctx.composites = append(ctx.composites, decl)
	return starlark.None, nil
}
