package buildsys

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

// CacheKey is everything besides the script itself that a cached task list depends on.
// The output of execute() and the results of isdir() and isfile() are not tracked.
type CacheKey struct {
	// Dir is the directory of the build the tasks were configured for
	Dir     string
	Options map[string]string
	// Inputs are the files the script read through read_yaml()
	Inputs []string
	// Env holds the environment variables the script read and their values at the time
	Env map[string]string
}

// CacheKeyFor returns the key a configured script has to be cached under
func CacheKeyFor(script *Script, dir string, options map[string]string) CacheKey {
	return CacheKey{
		Dir:     dir,
		Options: options,
		Inputs:  script.Inputs,
		Env:     script.EnvReads,
	}
}

// WriteCache stores the key a task list was configured with and the list itself.
func WriteCache(file string, key CacheKey, list TaskList) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	writer := brotli.NewWriter(handle)
	encoder := gob.NewEncoder(writer)
	if err = encoder.Encode(key); err != nil {
		return eris.Wrapf(err, "failed to encode cache key for %s", file)
	}

	if err = encoder.Encode(list); err != nil {
		return eris.Wrapf(err, "failed to encode tasks for %s", file)
	}

	if err = writer.Close(); err != nil {
		return err
	}
	return handle.Close()
}

func ReadCache(file string) (CacheKey, TaskList, error) {
	var key CacheKey
	handle, err := os.Open(file)
	if err != nil {
		return key, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(brotli.NewReader(handle))
	if err = decoder.Decode(&key); err != nil {
		return key, nil, eris.Wrapf(err, "failed to decode cache key from %s", file)
	}

	var result TaskList
	if err = decoder.Decode(&result); err != nil {
		return key, nil, eris.Wrapf(err, "failed to decode tasks from %s", file)
	}

	return key, result, nil
}

func sameOptions(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ReadFreshCache returns the cached task list if the cache is newer than script and every
// file in its key, was written for the build in dir with the same options and the recorded
// environment variables still have the same values. ok is false if the script has to be
// evaluated again.
func ReadFreshCache(file, script, dir string, options map[string]string) (TaskList, bool) {
	cacheInfo, err := os.Stat(file)
	if err != nil {
		return nil, false
	}

	scriptInfo, err := os.Stat(script)
	if err != nil || !cacheInfo.ModTime().After(scriptInfo.ModTime()) {
		return nil, false
	}

	key, list, err := ReadCache(file)
	if err != nil {
		return nil, false
	}

	if filepath.Clean(key.Dir) != filepath.Clean(dir) || !sameOptions(key.Options, options) {
		return nil, false
	}

	for _, input := range key.Inputs {
		info, err := os.Stat(input)
		if err != nil || !cacheInfo.ModTime().After(info.ModTime()) {
			return nil, false
		}
	}

	for name, value := range key.Env {
		if os.Getenv(name) != value {
			return nil, false
		}
	}

	for _, task := range list {
		if !withinDir(dir, task.Base) {
			return nil, false
		}
	}
	return list, true
}
