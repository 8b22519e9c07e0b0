package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/edgebridge/internal/protocol/command"
	"github.com/spf13/cobra"
)

// format prints the wire line a console command would broadcast.
func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "format VERB [VALUE...]",
		Short:   "Show the device line for an operator command without sending it",
		Example: "  bridgectl format MOVE 101b 2Ah",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := command.Format(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
