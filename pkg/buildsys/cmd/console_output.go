package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ConsoleWriter turns zerolog's JSON events into coloured lines prefixed with the build and
// task they belong to.
type ConsoleWriter struct {
	out    io.Writer
	debug  bool
	buffer strings.Builder
	lock   sync.Mutex
}

// colorizer leaves the reset to the line itself so nothing trails the newline
var colorizer = colorstring.Colorize{Colors: colorstring.DefaultColors, Reset: false}

func NewConsoleWriter(out io.Writer, debug bool) *ConsoleWriter {
	return &ConsoleWriter{out: out, debug: debug}
}

func stringField(evt map[string]interface{}, name string) string {
	value, ok := evt[name].(string)
	if !ok {
		return ""
	}
	return value
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	level := stringField(evt, zerolog.LevelFieldName)
	w.buffer.Reset()
	switch level {
	case "fatal", "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug", "trace":
		w.buffer.WriteString("[blue]")
	default:
		w.buffer.WriteString("[green]")
	}

	build := stringField(evt, "build")
	task := stringField(evt, "task")
	switch {
	case build != "" && task != "":
		w.buffer.WriteString(build + ":" + task + ": ")
	case build != "":
		w.buffer.WriteString(build + ": ")
	case task != "":
		w.buffer.WriteString(":" + task + ": ")
	}

	if composite := stringField(evt, "composite"); composite != "" {
		w.buffer.WriteString("[bold]" + composite + "[reset]: ")
	}

	if level == "error" || level == "fatal" {
		w.buffer.WriteString("Error: ")
	}

	if isCmd, _ := evt["command"].(bool); isCmd {
		w.buffer.WriteString("[reset]$ ")
	}

	msg := stringField(evt, zerolog.MessageFieldName)
	if path := stringField(evt, "path"); path != "" {
		if relPath, err := filepath.Rel(".", path); err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	w.buffer.WriteString(msg)

	if errorDetails := stringField(evt, zerolog.ErrorFieldName); errorDetails != "" {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if w.debug {
		w.buffer.WriteString("\n")
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("[reset]\n")
	if _, err = io.WriteString(w.out, colorizer.Color(w.buffer.String())); err != nil {
		return 0, err
	}
	return len(p), nil
}

// setupErrorMarshaller renders eris errors with or without their stack traces
func setupErrorMarshaller(debug bool) {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, debug)
	}
}
