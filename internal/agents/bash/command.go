package bash

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Command returns the "bash" command group for the chitti shell.
func (a *Agent) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   Name,
		Short: "Bash agent commands",
	}
	root.AddCommand(a.runCommand())
	return root
}

func (a *Agent) runCommand() *cobra.Command {
	var (
		workdir string
		yes     bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Suggest a shell command for a task and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			task := strings.Join(args, " ")

			dir, err := ResolveWorkdir(workdir)
			if err != nil {
				return err
			}
			suggestion, err := a.Suggest(ctx, task, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Suggested command: %s\n", color.New(color.FgCyan, color.Bold).Sprint(suggestion))
			if dryRun {
				return nil
			}
			if !yes && !confirm(cmd, "Execute this command?") {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			res, err := a.Run(ctx, suggestion, dir)
			if err != nil {
				return err
			}
			fmt.Fprint(out, res.Stdout)
			if res.ExitCode != 0 {
				return fmt.Errorf("%s", failureMessage(res))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory for command execution")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run without asking for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print the suggested command")
	return cmd
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
