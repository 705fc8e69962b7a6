package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelup/internal/api"
	"reelup/internal/config"
	"reelup/internal/deps"
	"reelup/internal/logging"
	"reelup/internal/notifications"
	"reelup/internal/records"
	"reelup/internal/runner"
	"reelup/internal/services"
	"reelup/internal/session"
	"reelup/internal/task"
	"reelup/internal/textutil"
	"reelup/internal/transcode"
	"reelup/internal/upload"
)

// uploadEnv bundles what both upload commands need.
type uploadEnv struct {
	cfg      *config.Config
	sess     *session.Session
	client   *api.Client
	store    *records.Store
	runner   *runner.Runner
	folderID string
}

func (c *commandContext) prepareUpload(cmd *cobra.Command, folderFlag string) (*uploadEnv, func(), error) {
	sess, client, err := c.requireSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	folderID := strings.TrimSpace(folderFlag)
	if folderID == "" {
		if folderID, err = sess.DestinationFolder(cmd.Context()); err != nil {
			return nil, nil, err
		}
	}
	store, err := records.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	r := runner.New(cfg,
		runner.WithLogger(c.loggerValue()),
		runner.WithExistingCheck(store, client, sess),
	)
	if err := r.Acquire(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		r.Release()
		_ = store.Close()
	}
	return &uploadEnv{cfg: cfg, sess: sess, client: client, store: store, runner: r, folderID: folderID}, cleanup, nil
}

func (e *uploadEnv) newTask(c *commandContext, paths []string, weight float64) *task.Task {
	orch := upload.NewOrchestratorFromConfig(e.cfg, e.client, e.sess, c.loggerValue())
	return task.New(orch, e.folderID, paths,
		task.WithPhaseWeight(weight),
		task.WithRecordSink(e.store),
		task.WithLogger(c.loggerValue()),
	)
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var folderFlag string
	cmd := &cobra.Command{
		Use:   "upload <files...>",
		Short: "Upload files to the selected folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := ctx.prepareUpload(cmd, folderFlag)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			paths, skipped := env.runner.FilterExisting(cmd.Context(), args)
			for _, path := range skipped {
				fmt.Fprintf(out, "Skipping %s (already uploaded)\n", path)
			}
			if len(paths) == 0 {
				fmt.Fprintln(out, "Nothing to upload")
				return nil
			}

			tk := env.newTask(ctx, paths, env.cfg.Task.UploadPhaseWeight)
			return drive(cmd, env, tk, "Uploading", nil)
		},
	}
	cmd.Flags().StringVar(&folderFlag, "folder", "", "Destination folder ID (defaults to the selected folder)")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var folderFlag string
	cmd := &cobra.Command{
		Use:   "export <source>",
		Short: "Transcode a source with drapto and upload the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Transcode.Enabled {
				return errors.New("transcoding is disabled in the configuration; use `reelup upload`")
			}
			source := args[0]
			if _, err := os.Stat(source); err != nil {
				return services.Wrap(services.ErrFileUnreadable, "export", "stat", source, err)
			}
			if err := deps.Missing(ctx.checkTools()); err != nil {
				return fmt.Errorf("encoder tools unavailable: %w", err)
			}
			env, cleanup, err := ctx.prepareUpload(cmd, folderFlag)
			if err != nil {
				return err
			}
			defer cleanup()

			tk := env.newTask(ctx, nil, cfg.Task.TranscodePhaseWeight)
			encoder := ctx.newEncoder()
			logger := ctx.loggerValue()
			upstream := func(upCtx context.Context) error {
				output, err := transcode.Export(upCtx, encoder, tk, source, cfg.Paths.StagingDir, logger)
				if err != nil {
					return err
				}
				if nerr := notifications.NewService(cfg).Publish(upCtx, notifications.EventEncodingCompleted,
					notifications.Payload{"source": source}); nerr != nil {
					logging.WarnWithContext(logger, "notification failed", "notify_failed", logging.Error(nerr))
				}
				logger.Debug("export handed to upload", logging.String("output", output))
				return nil
			}
			return drive(cmd, env, tk, "Exporting", upstream)
		},
	}
	cmd.Flags().StringVar(&folderFlag, "folder", "", "Destination folder ID (defaults to the selected folder)")
	return cmd
}

func drive(cmd *cobra.Command, env *uploadEnv, tk *task.Task, label string, upstream func(context.Context) error) error {
	signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	line := newProgressLine(cmd.ErrOrStderr(), label)
	folderName := env.folderID
	if folder, err := env.sess.FindFolder(cmd.Context(), env.folderID); err == nil && folder.Name != "" {
		folderName = folder.Name
	}
	summary, err := env.runner.Drive(signalCtx, tk, runner.DriveOptions{
		FolderName: folderName,
		Upstream:   upstream,
		OnProgress: line.update,
	})
	line.done()

	out := cmd.OutOrStdout()
	for _, res := range tk.Results() {
		switch res.State {
		case upload.JobCompleted:
			fmt.Fprintf(out, "Uploaded %s -> %s\n", res.Path, res.AssetID)
		case upload.JobCancelled:
			fmt.Fprintf(out, "Cancelled %s\n", res.Path)
		case upload.JobFailed:
			fmt.Fprintf(out, "Failed %s: %v\n", res.Path, res.Err)
		}
	}
	if err != nil {
		if errors.Is(err, services.ErrCancelled) {
			fmt.Fprintf(out, "Upload cancelled (%d of %d file(s) finished)\n", summary.Completed, summary.Files)
			return context.Canceled
		}
		return err
	}
	fmt.Fprintf(out, "%d file(s), %s uploaded to %s in %s\n",
		summary.Completed, textutil.FormatBytes(summary.Bytes), folderName, summary.Duration.Round(time.Millisecond))
	return nil
}
