package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/plan"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var red = color.New(color.FgRed).SprintFunc()

var outputFormatsCompletion = []string{"json", "text"}

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// useColor reports whether output written to w should be colored.
func useColor(w io.Writer) bool {
	if viper.GetBool("no-color") {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
}

func newLogger(w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: !useColor(w)}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func getOutputJSON(result any, colored bool) ([]byte, error) {
	if !colored {
		return json.MarshalIndent(result, "", "  ")
	}
	return prettyjson.Marshal(result)
}

func checkOutputFormat(format string) (string, error) {
	switch f := strings.ToLower(format); f {
	case "", "text", "json":
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}

// loadClasses reads classes from a plan file or from a snapshot written by
// apply --out.
func loadClasses(path string) ([]*bytecode.Class, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		p, err := plan.Load(path)
		if err != nil {
			return nil, err
		}
		targets, err := p.Build()
		if err != nil {
			return nil, err
		}
		classes := make([]*bytecode.Class, len(targets))
		for i, t := range targets {
			classes[i] = t.Class
		}
		return classes, nil
	}
	snap, err := plan.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return snap.Restore()
}
