package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// walkCommands calls fn for cmd and every command below it, parents first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong lists the visible subcommands of a parent at the end of
// its Long text. Leaves are left alone.
func enrichParentLong(cmd *cobra.Command) {
	subs := visibleSubcommands(cmd)
	if len(subs) == 0 {
		return
	}

	width := 0
	for _, sub := range subs {
		width = max(width, len(sub.Name()))
	}

	lines := make([]string, 0, len(subs))
	for _, sub := range subs {
		line := fmt.Sprintf("  %-*s  %s", width, sub.Name(), sub.Short)
		if len(sub.Aliases) > 0 {
			line += fmt.Sprintf(" (alias: %s)", strings.Join(sub.Aliases, ", "))
		}
		lines = append(lines, line)
	}

	cmd.Long = strings.TrimRight(cmd.Long, "\n") + "\n\nSubcommands:\n" + strings.Join(lines, "\n") + "\n"
}

func visibleSubcommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			out = append(out, sub)
		}
	}
	return out
}
