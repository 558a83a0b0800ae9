package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/deepnoodle-ai/hookasm"
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/internal/table"
	"github.com/deepnoodle-ai/hookasm/plan"
	"github.com/deepnoodle-ai/hookasm/transform"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// applyResult is the report printed by apply.
type applyResult struct {
	RunID    string              `json:"run_id"`
	Injected int                 `json:"injected"`
	Classes  []*transform.Report `json:"classes"`
	Snapshot string              `json:"snapshot,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Apply the injections of a plan",
		Args:  cobra.ExactArgs(1),
		RunE:  applyHandler,
	}
	flags := cmd.Flags()
	flags.String("out", "", "Write a snapshot of the transformed classes to this file")
	flags.StringP("output", "o", "", "Output format (json or text)")
	flags.Bool("verify", false, "Verify the stack of every injected block")
	flags.Int("workers", 0, "Maximum number of methods transformed at once")
	viper.BindPFlag("out", flags.Lookup("out"))
	viper.BindPFlag("output", flags.Lookup("output"))
	viper.BindPFlag("verify", flags.Lookup("verify"))
	viper.BindPFlag("workers", flags.Lookup("workers"))
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func applyHandler(cmd *cobra.Command, args []string) error {
	format, err := checkOutputFormat(viper.GetString("output"))
	if err != nil {
		return err
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	targets, err := hookasm.Compile(string(source), hookasm.WithFilename(args[0]))
	if err != nil {
		return reportErrors(stderr, err)
	}

	// Listings would corrupt a JSON document on stdout.
	listings := stdout
	if format == "json" {
		listings = stderr
	}
	result := &applyResult{RunID: transform.NewRunID()}
	reports, errs := hookasm.Run(cmd.Context(), targets,
		hookasm.WithRunID(result.RunID),
		hookasm.WithWorkers(viper.GetInt("workers")),
		hookasm.WithVerify(viper.GetBool("verify")),
		hookasm.WithLogger(newLogger(stderr)),
		hookasm.WithPrint(listings, useColor(listings)),
	)
	result.Classes = reports
	for _, report := range reports {
		result.Injected += report.Injected
	}
	classes := make([]*bytecode.Class, len(targets))
	for i, t := range targets {
		classes[i] = t.Class
	}

	if errs == nil {
		if out := viper.GetString("out"); out != "" {
			if err := plan.WriteSnapshot(out, plan.NewSnapshot(result.RunID, classes)); err != nil {
				return err
			}
			result.Snapshot = out
		}
	} else if agg, ok := errs.(*multierror.Error); ok {
		for _, e := range agg.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
	}

	if err := printApplyResult(stdout, result, format); err != nil {
		return err
	}
	if errs != nil {
		return reportErrors(stderr, errs)
	}
	return nil
}

func printApplyResult(w io.Writer, result *applyResult, format string) error {
	if format == "json" {
		data, err := getOutputJSON(result, useColor(w))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	var rows [][]string
	for _, report := range result.Classes {
		for _, r := range report.Results {
			rows = append(rows, []string{r.Target, r.Handler, r.Strategy, strconv.Itoa(r.Points)})
		}
	}
	if len(rows) > 0 {
		err := table.NewTable(w).
			WithHeader([]string{"TARGET", "HANDLER", "STRATEGY", "POINTS"}).
			WithColumnAlignment([]table.Alignment{
				table.AlignLeft,
				table.AlignLeft,
				table.AlignLeft,
				table.AlignRight,
			}).
			WithRows(rows).
			Render()
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "run %s: %d injection point(s)\n", result.RunID, result.Injected)
	if err == nil && result.Snapshot != "" {
		_, err = fmt.Fprintf(w, "snapshot written to %s\n", result.Snapshot)
	}
	return err
}

// reportErrors writes every error in err to w in the friendly format and
// returns a short summary error.
func reportErrors(w io.Writer, err error) error {
	var list []error
	if agg, ok := err.(interface{ WrappedErrors() []error }); ok {
		for _, e := range agg.WrappedErrors() {
			if inner, ok := e.(interface{ WrappedErrors() []error }); ok {
				list = append(list, inner.WrappedErrors()...)
			} else {
				list = append(list, e)
			}
		}
	} else {
		list = []error{err}
	}

	var formatted []*errors.FormattedError
	for _, e := range list {
		if ie, ok := e.(*errors.InjectionError); ok {
			formatted = append(formatted, ie.ToFormatted())
		} else {
			fmt.Fprintln(w, red(e.Error()))
		}
	}
	if len(formatted) > 0 {
		fmt.Fprint(w, errors.NewFormatter(useColor(w)).FormatMultiple(formatted))
	}
	return fmt.Errorf("found %d error(s)", len(list))
}
