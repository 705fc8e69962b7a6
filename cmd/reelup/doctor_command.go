package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelup/internal/textutil"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report session state and encoder tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:  %s\n", cfg.Service.BaseURL)
			fmt.Fprintf(out, "State:    %s\n", cfg.Paths.StateDir)

			sess, _, err := ctx.openSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if sess.Authenticated() {
				fmt.Fprintf(out, "Session:  %s\n", sess.Email())
			} else {
				fmt.Fprintln(out, "Session:  not logged in")
			}

			if !cfg.Transcode.Enabled {
				fmt.Fprintln(out, "Transcode: disabled")
				return nil
			}
			var rows [][]string
			for _, status := range ctx.checkTools() {
				state := textutil.Ternary(status.Available, "ok", "missing")
				detail := textutil.Ternary(status.Available, status.Path, status.Detail)
				rows = append(rows, []string{status.Name, state, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Status", "Detail"}, rows, nil))
			return nil
		},
	}
}
