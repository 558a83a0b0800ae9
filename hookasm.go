// Package hookasm injects handler calls into JVM method bodies.
//
// The usual flow is to Compile a YAML plan into classes and injections and
// then Run them:
//
//	targets, err := hookasm.Compile(source, hookasm.WithFilename("plan.yaml"))
//	reports, err := hookasm.Run(ctx, targets, hookasm.WithVerify(true))
//
// Eval does both in one call. The packages underneath (inject, transform,
// plan, vm) may also be used directly.
package hookasm

import (
	"context"
	"io"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/inject"
	"github.com/deepnoodle-ai/hookasm/plan"
	"github.com/deepnoodle-ai/hookasm/transform"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Option configures a compilation or a run.
type Option func(*options)

type options struct {
	filename string
	verify   bool
	workers  int
	runID    string
	color    bool
	logger   *zerolog.Logger
	print    io.Writer
	resolver inject.LocalResolver
}

func collectOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) transformConfig(runID string) transform.Config {
	return transform.Config{
		Workers:  o.workers,
		Verify:   o.verify,
		Logger:   o.logger,
		Print:    o.print,
		Color:    o.color,
		Resolver: o.resolver,
		RunID:    runID,
	}
}

// WithFilename sets the name of the plan being compiled. It is used in
// error messages.
func WithFilename(filename string) Option {
	return func(o *options) {
		o.filename = filename
	}
}

// WithVerify enables stack verification of every injected block.
func WithVerify(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// WithWorkers bounds the number of methods transformed at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithRunID tags the run. By default a random ID is generated.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithLogger sets the logger used for progress and diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithPrint sets the writer that receives method listings for injections
// marked with print. Color enables ANSI colors in the listing.
func WithPrint(w io.Writer, color bool) Option {
	return func(o *options) {
		o.print = w
		o.color = color
	}
}

// WithResolver replaces the local variable discriminator.
func WithResolver(r inject.LocalResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// Compile parses plan source and builds its classes and injections. The
// returned classes are fresh and owned by the caller.
func Compile(source string, opts ...Option) ([]*plan.Target, error) {
	o := collectOptions(opts...)
	p, err := plan.Parse([]byte(source))
	if err != nil {
		return nil, o.annotate(err)
	}
	targets, err := p.Build()
	if err != nil {
		return nil, o.annotate(err)
	}
	return targets, nil
}

// annotate names the plan file in err when nothing more specific is set.
func (o *options) annotate(err error) error {
	if ie, ok := err.(*errors.InjectionError); ok && ie.Target == "" && o.filename != "" {
		ie.Target = o.filename
	}
	return err
}

// Run applies the injections of every target. Reports are returned for
// the targets that have injections, in order, even when err is non-nil.
// All targets share one run ID.
func Run(ctx context.Context, targets []*plan.Target, opts ...Option) ([]*transform.Report, error) {
	o := collectOptions(opts...)
	runID := o.runID
	if runID == "" {
		runID = transform.NewRunID()
	}
	cfg := o.transformConfig(runID)

	var result *multierror.Error
	var reports []*transform.Report
	for _, t := range targets {
		if len(t.Injections) == 0 {
			continue
		}
		report, err := transform.Apply(ctx, t.Class, t.Injections, cfg)
		if err != nil {
			result = multierror.Append(result, err)
		}
		reports = append(reports, report)
	}
	return reports, result.ErrorOrNil()
}

// Eval compiles source and runs it, returning the transformed classes.
func Eval(ctx context.Context, source string, opts ...Option) ([]*bytecode.Class, []*transform.Report, error) {
	targets, err := Compile(source, opts...)
	if err != nil {
		return nil, nil, err
	}
	reports, err := Run(ctx, targets, opts...)
	classes := make([]*bytecode.Class, len(targets))
	for i, t := range targets {
		classes[i] = t.Class
	}
	return classes, reports, err
}
