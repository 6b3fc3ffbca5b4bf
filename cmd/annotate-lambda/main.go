// Package main is the event-driven entry point: S3 ObjectCreated
// notifications on the source bucket are annotated and the result record is
// published to the configured destination.
//
// Memory: 512 MB
// Timeout: 2 minutes
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/config"
	"github.com/fpang/vision-archiver/internal/lambdaboot"
	"github.com/fpang/vision-archiver/internal/logging"
	"github.com/fpang/vision-archiver/internal/metrics"
)

// Set at build time via -ldflags.
var (
	commitHash = "dev"
	buildTime  = ""
)

// bootstrap performs cold-start wiring. Any failure is fatal.
func bootstrap() *eventHandler {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	clients := lambdaboot.InitAWS(cfg.S3EndpointURL)
	if err := lambdaboot.LoadCredentials(context.Background(), clients.SSM, cfg); err != nil {
		log.Fatal().Err(err).Str("param", cfg.CredentialsSSMParam).Msg("Failed to load credentials")
	}

	blobs := blobstore.NewS3Store(clients.S3)
	c, err := lambdaboot.Assemble(cfg, blobs, clients.Dynamo, metrics.NewEMFObserver())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble pipeline")
	}

	h := newEventHandler(c.Pipeline, blobs, c.Archive.Bucket(cfg.Destination()), c.Archive.Prefix())

	lambdaboot.StartupLog("annotate-lambda", initStart, cfg).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
	return h
}

func main() {
	lambda.Start(bootstrap().handle)
}
