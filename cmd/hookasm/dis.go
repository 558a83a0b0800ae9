package main

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/spf13/cobra"
)

func newDisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <plan.yaml|snapshot>",
		Short: "Disassemble the methods of a plan or snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  disHandler,
	}
	cmd.Flags().StringP("method", "m", "", "Method to disassemble")
	return cmd
}

func disHandler(cmd *cobra.Command, args []string) error {
	classes, err := loadClasses(args[0])
	if err != nil {
		return reportErrors(cmd.ErrOrStderr(), err)
	}
	name, _ := cmd.Flags().GetString("method")
	out := cmd.OutOrStdout()
	colored := useColor(out)

	found := false
	for _, class := range classes {
		for _, m := range class.Methods {
			if name != "" && m.Name != name && m.Signature() != name {
				continue
			}
			if found {
				fmt.Fprintln(out)
			}
			found = true
			if err := dis.Print(out, class.Name, m, colored); err != nil {
				return err
			}
		}
	}
	if !found && name != "" {
		return fmt.Errorf("method %q not found", name)
	}
	return nil
}
