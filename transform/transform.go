// Package transform applies a set of injections to a class.
//
// Every injection selects its target methods by name, finds its injection
// points in each one and asks an inject.Injector to insert the handler
// call. Different target methods are transformed concurrently; all the
// injections into one method run in declaration order on one goroutine.
package transform

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"time"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/inject"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Injection is a handler together with its @Inject annotation.
type Injection struct {
	Handler *handler.Handler
	Inject  handler.Inject
	Variant inject.Variant
}

// Config controls Apply. The zero value is usable.
type Config struct {
	// Workers bounds the number of methods transformed at once. Zero means
	// runtime.NumCPU().
	Workers int

	// Verify runs stack verification on every synthesized block.
	Verify bool

	// Logger receives progress messages. Nil discards them.
	Logger *zerolog.Logger

	// Print receives the disassembly and a diff of every method touched by
	// an injection whose Print flag is set.
	Print io.Writer

	// Color enables colored disassembly on Print.
	Color bool

	// Resolver replaces the default local discriminator.
	Resolver inject.LocalResolver

	// RunID tags log messages and the report. Empty generates a new one.
	RunID string
}

// Result describes the injections of one handler into one method.
type Result struct {
	Handler  string `json:"handler"`
	Target   string `json:"target"`
	Strategy string `json:"strategy"`
	Points   int    `json:"points"`
}

// Report summarizes an Apply call.
type Report struct {
	RunID    string        `json:"run_id"`
	Class    string        `json:"class"`
	Injected int           `json:"injected"`
	Elapsed  time.Duration `json:"elapsed"`
	Results  []Result      `json:"results"`
}

type job struct {
	index    int
	injector *inject.Injector
	inject   handler.Inject
}

// group holds every job that targets one method.
type group struct {
	method  *bytecode.Method
	jobs    []job
	results []Result
	err     error
	out     bytes.Buffer
}

// Apply runs injections against class, mutating its methods in place. The
// report lists every successful injection even when err is non-nil. Errors
// for different injections and methods are aggregated.
func Apply(ctx context.Context, class *bytecode.Class, injections []Injection, cfg Config) (*Report, error) {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}
	logger = logger.With().Str("run", runID).Str("class", class.Name).Logger()
	start := time.Now()
	logger.Info().Int("injections", len(injections)).Msg("transform started")

	var result *multierror.Error
	groups, byMethod := []*group{}, map[*bytecode.Method]*group{}
	for i, in := range injections {
		injector, err := newInjector(in, cfg, logger)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		methods, err := selectMethods(class, in)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, m := range methods {
			g, ok := byMethod[m]
			if !ok {
				g = &group{method: m}
				byMethod[m] = g
				groups = append(groups, g)
			}
			g.jobs = append(g.jobs, job{index: i, injector: injector, inject: in.Inject})
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, g := range groups {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				g.err = err
				return nil
			}
			g.err = transformMethod(class.Name, g, cfg, logger)
			return nil
		})
	}
	_ = eg.Wait()

	report := &Report{RunID: runID, Class: class.Name}
	counts := make([]int, len(injections))
	for _, g := range groups {
		if g.err != nil {
			result = multierror.Append(result, g.err)
		}
		for i, r := range g.results {
			counts[g.jobs[i].index] += r.Points
			report.Injected += r.Points
		}
		report.Results = append(report.Results, g.results...)
		if cfg.Print != nil && g.out.Len() > 0 {
			if _, err := g.out.WriteTo(cfg.Print); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	for i, in := range injections {
		if err := checkCount(in, counts[i], logger); err != nil {
			result = multierror.Append(result, err)
		}
	}
	report.Elapsed = time.Since(start)

	event := logger.Info()
	if result.ErrorOrNil() != nil {
		event = logger.Warn().Int("errors", result.Len())
	}
	event.Int("injected", report.Injected).Dur("elapsed", report.Elapsed).Msg("transform finished")
	return report, result.ErrorOrNil()
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func newInjector(in Injection, cfg Config, logger zerolog.Logger) (*inject.Injector, error) {
	if err := in.Inject.Validate(); err != nil {
		return nil, errors.Wrap(errors.E5001, err, "invalid @Inject").WithHandler(in.Handler.String())
	}
	opts := []inject.Option{
		inject.WithLogger(logger),
		inject.WithVariant(in.Variant),
		inject.WithCancellable(in.Inject.Cancellable),
		inject.WithVerify(cfg.Verify),
	}
	if cfg.Resolver != nil {
		opts = append(opts, inject.WithResolver(cfg.Resolver))
	}
	return inject.New(in.Handler, opts...)
}

// selectMethods returns the methods of class matched by the injection's
// selectors, in class order. A selector matching nothing is an error.
func selectMethods(class *bytecode.Class, in Injection) ([]*bytecode.Method, error) {
	names := make([]string, 0, len(class.Methods))
	for _, m := range class.Methods {
		names = append(names, m.Name)
	}
	for i, sel := range in.Inject.Methods {
		one := handler.Inject{Methods: []string{sel}}
		found := false
		for _, m := range class.Methods {
			if one.Matches(m) {
				found = true
				break
			}
		}
		if !found {
			name := in.Inject.SelectorNames()[i]
			e := errors.New(errors.E5003, "no method of %s matches %q", class.Name, sel).
				WithHandler(in.Handler.String())
			e.Suggestions = errors.SuggestSimilar(name, names)
			return nil, e
		}
	}
	var out []*bytecode.Method
	for _, m := range class.Methods {
		if in.Inject.Matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// transformMethod runs every job of g against its method. The first failure
// stops the method.
func transformMethod(owner string, g *group, cfg Config, logger zerolog.Logger) error {
	target, err := bytecode.NewTarget(owner, g.method)
	if err != nil {
		return errors.Wrap(errors.E5001, err, "invalid target %s.%s%s", owner, g.method.Name, g.method.Desc)
	}
	var before string
	printing := false
	for _, j := range g.jobs {
		printing = printing || j.inject.Print
	}
	if printing {
		before = dis.Format(target.Instructions())
	}

	// Points are selected before anything is inserted so that each job sees
	// the original method body.
	selected := make([][]bytecode.Insn, len(g.jobs))
	for i, j := range g.jobs {
		if selected[i], err = points(target, j.inject); err != nil {
			return err
		}
	}
	for i, j := range g.jobs {
		applied := 0
		for _, node := range selected[i] {
			if err := j.injector.Inject(target, node); err != nil {
				// Points already injected stay in the method and are reported.
				if applied > 0 {
					g.record(target, j, applied, logger)
				}
				return err
			}
			applied++
		}
		g.record(target, j, applied, logger)
	}

	if printing && cfg.Print != nil {
		if err := dis.Print(&g.out, owner, g.method, cfg.Color); err != nil {
			return err
		}
		diff, err := dis.Diff(target.String(), before, dis.Format(target.Instructions()))
		if err != nil {
			return err
		}
		g.out.WriteString(diff)
	}
	return nil
}

// record appends the result of job j. Results stay aligned with g.jobs.
func (g *group) record(target *bytecode.Target, j job, points int, logger zerolog.Logger) {
	g.results = append(g.results, Result{
		Handler:  j.injector.Handler().String(),
		Target:   target.String(),
		Strategy: j.injector.Strategy().String(),
		Points:   points,
	})
	logger.Debug().
		Str("handler", j.injector.Handler().String()).
		Str("target", target.String()).
		Int("points", points).
		Msg("target transformed")
}

// points returns the injection points selected by every At spec, without
// duplicates, in first-seen order.
func points(target *bytecode.Target, in handler.Inject) ([]bytecode.Insn, error) {
	seen := map[bytecode.Insn]bool{}
	var out []bytecode.Insn
	for _, spec := range in.At {
		nodes, err := spec.Find(target.Instructions())
		if err != nil {
			return nil, errors.Wrap(errors.E5001, err, "invalid injection point in %s", target)
		}
		for _, n := range nodes {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// checkCount enforces the require and allow bounds of an injection. Falling
// short of expect is only logged.
func checkCount(in Injection, n int, logger zerolog.Logger) error {
	a := in.Inject
	switch {
	case a.Require >= 0 && n < a.Require:
		return errors.New(errors.E4006, "critical injection failure: %s succeeded %d time(s), %d required",
			in.Handler, n, a.Require).WithHandler(in.Handler.String())
	case a.Allow >= 0 && n > a.Allow:
		return errors.New(errors.E4006, "injection %s succeeded %d time(s), at most %d allowed",
			in.Handler, n, a.Allow).WithHandler(in.Handler.String())
	case a.Expect > 0 && n < a.Expect:
		logger.Warn().
			Str("handler", in.Handler.String()).
			Int("count", n).
			Int("expected", a.Expect).
			Msgf("injection %s found fewer points than expected", in.Handler.Name())
	}
	return nil
}
