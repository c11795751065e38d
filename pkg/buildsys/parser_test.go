package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2immu/e2build/pkg/aggregate"
)

const subBuildScript = `
def configure():
    task(short = "test", cmds = ["echo test > test.txt"])
    task(short = "clean", cmds = ["echo clean > clean.txt"])
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o770))
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(content, "\n")), 0o660))
}

func runRoot(t *testing.T, root, content string, options map[string]string) (*Script, error) {
	t.Helper()
	script := filepath.Join(root, "tasks.star")
	writeFile(t, script, content)
	return RunScript(context.Background(), script, root, options, true)
}

func TestIncludesAndComposites(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"alpha", "beta", "gamma"} {
		writeFile(t, filepath.Join(root, id, "tasks.star"), subBuildScript)
	}

	script, err := runRoot(t, root, `
include_build("alpha")
include_build("beta")
include_build("gamma", path = "//gamma")

def configure():
    composite("test", deps = ["alpha", build("beta", enabled = False), build("gamma")], desc = "all tests")
    composite("clean", deps = included_builds())
`, nil)
	require.NoError(t, err)

	require.Len(t, script.Includes, 3)
	assert.Equal(t, Include{ID: "gamma", Dir: filepath.Join(root, "gamma")}, script.Includes[2])

	require.Len(t, script.Composites, 2)
	test := script.Composites[0]
	assert.Equal(t, "test", test.Name)
	assert.Equal(t, "all tests", test.Desc)
	assert.Equal(t, aggregate.Explicit{
		aggregate.Ref("alpha"),
		aggregate.Disabled("beta"),
		aggregate.Ref("gamma"),
	}, test.Selection)

	assert.Equal(t, aggregate.AllIncluded{}, script.Composites[1].Selection)
}

func TestIncludeOnlyDuringInit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "tasks.star"), subBuildScript)

	_, err := runRoot(t, root, `
def configure():
    include_build("alpha")
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init phase")
}

func TestCompositeOnlyDuringConfigure(t *testing.T) {
	root := t.TempDir()

	_, err := runRoot(t, root, `
composite("clean", deps = included_builds())

def configure():
    pass
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure()")
}

func TestDuplicateInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "tasks.star"), subBuildScript)

	_, err := runRoot(t, root, `
include_build("alpha")
include_build("alpha")

def configure():
    pass
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already included")
}

func TestIncludeMissingDirectory(t *testing.T) {
	root := t.TempDir()

	_, err := runRoot(t, root, `
include_build("nowhere")

def configure():
    pass
`, nil)
	assert.Error(t, err)
}

func TestIncludeBuildsGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "b-two", "tasks.star"), subBuildScript)
	writeFile(t, filepath.Join(root, "modules", "a-one", "tasks.star"), subBuildScript)
	writeFile(t, filepath.Join(root, "modules", "docs", "README"), "not a build")

	script, err := runRoot(t, root, `
found = include_builds("modules/*")

def configure():
    if len(found) != 2:
        error("expected two builds")
    composite("clean", deps = found)
`, nil)
	require.NoError(t, err)

	require.Len(t, script.Includes, 2)
	assert.Equal(t, "a-one", script.Includes[0].ID)
	assert.Equal(t, "b-two", script.Includes[1].ID)
	assert.Equal(t, aggregate.Refs("a-one", "b-two"), script.Composites[0].Selection)
}

func TestCompositeRejectsBadDeps(t *testing.T) {
	root := t.TempDir()

	_, err := runRoot(t, root, `
def configure():
    composite("test", deps = [42])
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build IDs")

	_, err = runRoot(t, root, `
def configure():
    composite("configure", deps = [])
`, nil)
	assert.Error(t, err)

	_, err = runRoot(t, root, `
def configure():
    composite("test", deps = ["a"])
    composite("test", deps = ["b"])
`, nil)
	assert.Error(t, err)
}

func TestTaskDeclaration(t *testing.T) {
	root := t.TempDir()

	script, err := runRoot(t, root, `
def configure():
    helper = task(cmds = ["echo helper"])
    task(
        short = "build",
        desc = "Builds everything",
        deps = ["prepare"],
        env = {"MODE": "release"},
        cmds = [("FOO=bar", "echo", "hello world"), helper],
    )
    task(short = "prepare", cmds = ["echo prepare"])
`, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"build", "prepare"}, script.Tasks.Names())

	build := script.Tasks["build"]
	assert.Equal(t, "Builds everything", build.Desc)
	assert.Equal(t, []string{"prepare"}, build.Deps)
	assert.Equal(t, "release", build.Env["MODE"])
	assert.Equal(t, root, build.Base)

	require.Len(t, build.Cmds, 2)
	assert.Equal(t, TaskCmdScript{Content: "FOO=bar echo 'hello world'"}, build.Cmds[0])

	ref, ok := build.Cmds[1].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.True(t, ref.Task.Hidden)
	assert.True(t, strings.HasPrefix(ref.Task.Short, "auto#"))
}

func TestReservedTaskName(t *testing.T) {
	_, err := runRoot(t, t.TempDir(), `
def configure():
    task(short = "configure")
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestMissingConfigure(t *testing.T) {
	_, err := runRoot(t, t.TempDir(), `
x = 1
`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure")
}

func TestOptions(t *testing.T) {
	root := t.TempDir()
	content := `
mode = option("mode", "debug", help = "build mode")

def configure():
    task(short = mode)
`
	script, err := runRoot(t, root, content, nil)
	require.NoError(t, err)
	assert.Contains(t, script.Tasks, "debug")
	assert.Equal(t, "debug", script.Options["mode"].Default())
	assert.Equal(t, "build mode", script.Options["mode"].Help)

	script, err = runRoot(t, root, content, map[string]string{"mode": "release"})
	require.NoError(t, err)
	assert.Contains(t, script.Tasks, "release")
}

func TestEnvOverridesApplyToTasks(t *testing.T) {
	script, err := runRoot(t, t.TempDir(), `
setenv("JAVA_HOME", "/opt/jdk")

def configure():
    task(short = "a")
    task(short = "b", env = {"JAVA_HOME": "/other"})
`, nil)
	require.NoError(t, err)

	assert.Equal(t, "/opt/jdk", script.Tasks["a"].Env["JAVA_HOME"])
	assert.Equal(t, "/other", script.Tasks["b"].Env["JAVA_HOME"])
}

func TestReadYaml(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "versions.yml"), `
java:
  release: 21
  vendors:
    - temurin
    - zulu
`)

	script, err := runRoot(t, root, `
release = read_yaml("versions.yml", "java.release")
vendor = read_yaml("versions.yml", "java.vendors.1")
missing = read_yaml("versions.yml", "kotlin.release", "none")

def configure():
    task(short = "java%d-%s-%s" % (release, vendor, missing))
`, nil)
	require.NoError(t, err)
	assert.Contains(t, script.Tasks, "java21-zulu-none")
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()

	script, err := runRoot(t, root, `
out = resolve_path("//build", "libs")

def configure():
    task(short = "t", cmds = [("echo", out)])
`, nil)
	require.NoError(t, err)
	assert.Equal(t, TaskCmdScript{Content: "echo build/libs"}, script.Tasks["t"].Cmds[0])
}

func TestSkipConfigure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "tasks.star"), subBuildScript)

	script, err := RunScript(context.Background(), writeAndReturn(t, root, `
include_build("alpha")

def configure():
    error("must not be called")
`), root, nil, false)
	require.NoError(t, err)
	assert.Len(t, script.Includes, 1)
	assert.Empty(t, script.Tasks)
}

func writeAndReturn(t *testing.T, root, content string) string {
	path := filepath.Join(root, "tasks.star")
	writeFile(t, path, content)
	return path
}
