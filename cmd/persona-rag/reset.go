package main

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation"
	"github.com/spf13/cobra"
)

var errResetNotConfirmed = errors.New("refusing to delete every indexed chunk without --yes")

func newResetCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed chunk; chat history is kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errResetNotConfirmed
			}

			stack, err := generation.NewStack(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			n, err := stack.Memory.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}
