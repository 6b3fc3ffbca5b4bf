// Package main is the vision-ingest CLI: annotate a local image, serve the
// HTTP API with Prometheus metrics, or list an object's run history.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/vision-archiver/internal/logging"
)

const (
	backendFS = "fs"
	backendS3 = "s3"
)

// Global flags
var (
	backendFlag string
	rootFlag    string
	envFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "vision-ingest",
	Short: "Annotate images with Cloud Vision and publish the result record",
	Long: `vision-ingest runs the annotation pipeline outside Lambda.

Each run normalizes an image, detects text and labels with the Cloud Vision
API, archives the previous record and writes the new one to the configured
destination (RESULTS_BUCKET_NAME / RESULTS_KEY).

The filesystem backend stores objects under --root/<bucket>/<key>; the s3
backend uses the default AWS credential chain.

Examples:
  vision-ingest annotate ./photos/cat.jpg
  vision-ingest annotate --backend s3 ./cat.jpg
  vision-ingest serve --addr :8080
  vision-ingest history cat.jpg --limit 5`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFileFlag); err != nil && !os.IsNotExist(err) {
			return err
		}
		logging.Init()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", backendFS, "Blob store backend: fs or s3")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "./data", "Root directory for the fs backend")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Environment file to load if present")

	rootCmd.AddCommand(annotateCmd, serveCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Debug().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
