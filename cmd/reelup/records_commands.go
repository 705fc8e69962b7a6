package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelup/internal/records"
	"reelup/internal/textutil"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show past uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := records.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads recorded")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, rec := range list {
				rows = append(rows, []string{
					rec.UploadedAt.Local().Format(time.DateTime),
					rec.AssetID,
					textutil.FormatBytes(rec.SizeBytes),
					rec.SourcePath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Uploaded", "Asset", "Size", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAssetCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "asset <id>",
		Short: "Show an uploaded asset and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := ctx.requireSession(cmd)
			if err != nil {
				return err
			}
			auth, err := sess.Auth()
			if err != nil {
				return err
			}
			asset, err := client.GetFileReference(cmd.Context(), auth, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, asset)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Asset: %s\n", asset.ID)
			fmt.Fprintf(out, "Name:  %s\n", asset.Name)
			fmt.Fprintf(out, "Size:  %s\n", textutil.FormatBytes(asset.FileSize))
			if len(asset.Comments) == 0 {
				fmt.Fprintln(out, "No comments")
				return nil
			}
			rows := make([][]string, 0, len(asset.Comments))
			for _, c := range asset.Comments {
				rows = append(rows, []string{
					formatTimecode(c.Timecode),
					c.Author,
					textutil.Truncate(c.Text, 60),
					textutil.Ternary(len(c.Draw) > 0, "yes", ""),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"At", "Author", "Comment", "Drawing"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// formatTimecode renders seconds as HH:MM:SS with milliseconds when present.
func formatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	total := millis / 1000
	out := fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
	if ms := millis % 1000; ms > 0 {
		out += "." + fmt.Sprintf("%03d", ms)
	}
	return out
}
