package main

import (
	"context"
	"fmt"

	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/config"
	"github.com/fpang/vision-archiver/internal/lambdaboot"
	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/fpang/vision-archiver/internal/store"
)

// environment is the backend-dependent wiring of one command.
type environment struct {
	cfg    *config.Config
	blobs  blobstore.Store
	dynamo store.DynamoAPI
}

func loadEnvironment(ctx context.Context, backend, root string) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	env := &environment{cfg: cfg}

	switch backend {
	case backendFS:
		fs, err := blobstore.NewFilesystemStore(root)
		if err != nil {
			return nil, err
		}
		env.blobs = fs
	case backendS3:
		clients, err := lambdaboot.LoadAWS(ctx, cfg.S3EndpointURL)
		if err != nil {
			return nil, err
		}
		if err := lambdaboot.LoadCredentials(ctx, clients.SSM, cfg); err != nil {
			return nil, err
		}
		env.blobs = blobstore.NewS3Store(clients.S3)
		env.dynamo = clients.Dynamo
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendFS, backendS3)
	}
	return env, nil
}

func (e *environment) assemble(observer pipeline.Observer) (*lambdaboot.Components, error) {
	return lambdaboot.Assemble(e.cfg, e.blobs, e.dynamo, observer)
}
