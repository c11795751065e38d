package buildsys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configureTasks(t *testing.T, root, content string) TaskList {
	t.Helper()
	script, err := runRoot(t, root, content, nil)
	require.NoError(t, err)
	return script.Tasks
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestRunTaskWithDeps(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "prepare", cmds = ["echo prepare >> log.txt"])
    task(short = "compile", deps = ["prepare"], cmds = ["echo compile >> log.txt"])
    task(short = "test", deps = ["prepare", "compile"], cmds = ["echo test >> log.txt"])
`)

	var stdout bytes.Buffer
	err := RunTask(context.Background(), root, "test", tasks, RunOptions{Stdout: &stdout})
	require.NoError(t, err)

	assert.Equal(t, "prepare\ncompile\ntest\n", readOutput(t, filepath.Join(root, "log.txt")))
}

func TestRunTaskRefs(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    step = task(cmds = ["echo inner >> log.txt"])
    task(short = "outer", cmds = ["echo before >> log.txt", step, "echo after >> log.txt"])
`)

	require.NoError(t, RunTask(context.Background(), root, "outer", tasks, RunOptions{}))
	assert.Equal(t, "before\ninner\nafter\n", readOutput(t, filepath.Join(root, "log.txt")))
}

func TestRunTaskEnv(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "show", env = {"GREETING": "hello"}, cmds = ["echo $GREETING"])
`)

	var stdout bytes.Buffer
	require.NoError(t, RunTask(context.Background(), root, "show", tasks, RunOptions{Stdout: &stdout}))
	assert.Equal(t, "hello\n", stdout.String())
}

func TestRunTaskRecursion(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "a", deps = ["b"])
    task(short = "b", deps = ["a"])
`)

	err := RunTask(context.Background(), root, "a", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursively")
}

func TestRunTaskMissing(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "a", deps = ["nowhere"])
`)

	err := RunTask(context.Background(), root, "b", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task b not found")

	err = RunTask(context.Background(), root, "a", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task nowhere not found")
}

func TestRunTaskFailure(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "fail", cmds = ["exit 3", "echo unreachable > out.txt"])
`)

	err := RunTask(context.Background(), root, "fail", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task fail failed")
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskDryRun(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "write", cmds = ["echo written > out.txt"])
`)

	require.NoError(t, RunTask(context.Background(), root, "write", tasks, RunOptions{DryRun: true}))
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskSkipIfExists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "marker"), "present")
	tasks := configureTasks(t, root, `
def configure():
    task(short = "once", skip_if_exists = ["marker"], cmds = ["echo ran > out.txt"])
`)

	require.NoError(t, RunTask(context.Background(), root, "once", tasks, RunOptions{}))
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))

	require.NoError(t, RunTask(context.Background(), root, "once", tasks, RunOptions{Force: true}))
	assert.FileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskUpToDate(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "src", "main.txt")
	output := filepath.Join(root, "out", "main.txt")
	writeFile(t, input, "source")
	writeFile(t, output, "old")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, past, past))

	tasks := configureTasks(t, root, `
def configure():
    task(short = "copy", inputs = ["src/*.txt"], outputs = ["out/*.txt"], cmds = ["echo new > out/main.txt"])
`)

	require.NoError(t, RunTask(context.Background(), root, "copy", tasks, RunOptions{}))
	assert.Equal(t, "old", readOutput(t, output))

	now := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(input, now, now))

	require.NoError(t, RunTask(context.Background(), root, "copy", tasks, RunOptions{}))
	assert.Equal(t, "new\n", readOutput(t, output))
}

func TestRunTaskCancelled(t *testing.T) {
	root := t.TempDir()
	tasks := configureTasks(t, root, `
def configure():
    task(short = "write", cmds = ["echo written > out.txt"])
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTask(ctx, root, "write", tasks, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}
