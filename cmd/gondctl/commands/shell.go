package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// shellBuiltins are handled by the shell loop instead of the command tree.
var shellBuiltins = [][2]string{
	{"help [command]", "Show commands, or the usage of one command"},
	{"exit / quit", "Leave the interactive shell"},
}

// errNestedShell is reported when "shell" is typed inside the shell.
var errNestedShell = errors.New("already in the interactive shell")

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive gondctl shell",
		Long: "Launches a REPL that accepts gondctl subcommands. Flags set on one " +
			"line do not carry over to the next. Type 'help', 'exit', or 'quit'.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(rootCmd, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runShell reads command lines from in and executes each against root.
func runShell(root *cobra.Command, in io.Reader, out, errOut io.Writer) error {
	prompt := root.Name() + "> "
	fmt.Fprintf(out, "%s interactive shell. Type 'help' for available commands, 'exit' to quit.\n\n", root.Name())
	fmt.Fprint(out, prompt)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())

		switch {
		case len(args) == 0:
		case args[0] == "exit" || args[0] == "quit":
			return nil
		case args[0] == "help" || args[0] == "?":
			if err := writeShellHelp(out, root, args[1:]); err != nil {
				fmt.Fprintln(errOut, "Error:", err)
			}
		case args[0] == "shell":
			fmt.Fprintln(errOut, "Error:", errNestedShell)
		default:
			resetFlags(root)
			root.SetArgs(args)
			if err := root.Execute(); err != nil {
				fmt.Fprintln(errOut, "Error:", err)
			}
		}

		fmt.Fprint(out, prompt)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

// resetFlags restores every flag in the tree to its default so values
// parsed for one line do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)

	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeShellHelp lists the runnable commands of root, or prints the usage
// of the command named by topic.
func writeShellHelp(out io.Writer, root *cobra.Command, topic []string) error {
	if len(topic) > 0 {
		cmd, rest, err := root.Find(topic)
		if err != nil || cmd == root || len(rest) > 0 {
			return fmt.Errorf("unknown command %q", strings.Join(topic, " "))
		}
		fmt.Fprint(out, cmd.UsageString())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Available commands:")
	for _, row := range shellRows(root) {
		fmt.Fprintf(w, "  %s\t%s\n", row[0], row[1])
	}
	for _, row := range shellBuiltins {
		fmt.Fprintf(w, "  %s\t%s\n", row[0], row[1])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}

// shellRows walks the command tree and returns the path and short
// description of every runnable command, sorted by path.
func shellRows(root *cobra.Command) [][2]string {
	var rows [][2]string

	var walk func(cmd *cobra.Command, path string)
	walk = func(cmd *cobra.Command, path string) {
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() || sub.Name() == "shell" || sub.Name() == "completion" {
				continue
			}
			p := strings.TrimSpace(path + " " + sub.Name())
			if sub.Runnable() {
				rows = append(rows, [2]string{p, sub.Short})
			}
			walk(sub, p)
		}
	}
	walk(root, "")

	slices.SortFunc(rows, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return rows
}
