package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// namedArgs requires exactly one non-blank positional argument per name and
// reports the first missing or blank one by name.
func namedArgs(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		usage := "usage: " + cmd.CommandPath() + " <" + strings.Join(names, "> <") + ">"
		if len(args) > len(names) {
			return fmt.Errorf("unexpected argument %q; %s", args[len(names)], usage)
		}
		for i, name := range names {
			if i >= len(args) {
				return fmt.Errorf("missing <%s>; %s", name, usage)
			}
			if strings.TrimSpace(args[i]) == "" {
				return fmt.Errorf("<%s> must not be blank", name)
			}
		}
		return nil
	}
}
