// Package main serves the synchronous annotation API behind API Gateway
// (HTTP API, payload v2) using the httpadapter proxy.
//
// Memory: 512 MB
// Timeout: 1 minute
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vision-archiver/internal/api"
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

func main() {
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

	c, err := lambdaboot.Assemble(cfg, blobstore.NewS3Store(clients.S3), clients.Dynamo, metrics.NewEMFObserver())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble pipeline")
	}

	lambdaboot.StartupLog("annotate-api-lambda", initStart, cfg).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()

	adapter := httpadapter.NewV2(api.WithAccessLog(api.NewHandler(c.Pipeline)))
	lambda.Start(adapter.ProxyWithContext)
}
