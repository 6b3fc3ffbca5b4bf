package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/vision-archiver/internal/cli"
	"github.com/fpang/vision-archiver/internal/filehandler"
	"github.com/fpang/vision-archiver/internal/pipeline"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [file]",
	Short: "Annotate one image and publish the record",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		path = cli.PromptForFile(os.Stdin, cmd.OutOrStdout())
	}
	if path == "" {
		return errors.New("no image file given")
	}
	path, err := cli.ResolveImagePath(path)
	if err != nil {
		return err
	}

	env, err := loadEnvironment(ctx, backendFlag, rootFlag)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.Describe(err))
		return err
	}
	c, err := env.assemble(nil)
	if err != nil {
		return err
	}

	img, err := filehandler.LoadImageFile(path)
	if err != nil {
		return err
	}
	log.Info().Str("path", img.Path).Str("mime", img.MIMEType).Int64("size", img.Size).Msg("Annotating image")

	out, err := c.Pipeline.Process(ctx, pipeline.BytesEvent(filepath.Base(img.Path), "file://"+img.Path, img.Data))
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.Describe(err))
		return err
	}
	cli.PrintOutcome(cmd.OutOrStdout(), out)
	return nil
}
