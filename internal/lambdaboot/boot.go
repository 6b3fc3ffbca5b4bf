// Package lambdaboot holds the cold-start wiring shared by the binaries:
// AWS clients, the SSM credential fetch, and pipeline assembly.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vision-archiver/internal/archive"
	"github.com/fpang/vision-archiver/internal/auth"
	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/config"
	"github.com/fpang/vision-archiver/internal/logging"
	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/fpang/vision-archiver/internal/store"
	"github.com/fpang/vision-archiver/internal/vision"
)

// AWSClients holds the SDK clients used across binaries.
type AWSClients struct {
	Config aws.Config
	S3     *s3.Client
	SSM    *ssm.Client
	Dynamo *dynamodb.Client
}

// LoadAWS loads the default credential chain. A non-empty s3Endpoint points
// the S3 client at an S3-compatible service using path-style addressing.
func LoadAWS(ctx context.Context, s3Endpoint string) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s3Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Endpoint)
			o.UsePathStyle = true
		}
	})
	return AWSClients{
		Config: cfg,
		S3:     s3Client,
		SSM:    ssm.NewFromConfig(cfg),
		Dynamo: dynamodb.NewFromConfig(cfg),
	}, nil
}

// InitAWS is LoadAWS for init(); failure is fatal.
func InitAWS(s3Endpoint string) AWSClients {
	clients, err := LoadAWS(context.Background(), s3Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	return clients
}

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadCredentials fills cfg.CredentialsJSON from the SSM parameter named by
// cfg.CredentialsSSMParam. The parameter holds the same base64 value as the
// environment variable. Nothing is fetched when the inline value is already
// set or no parameter is configured.
func LoadCredentials(ctx context.Context, client SSMAPI, cfg *config.Config) error {
	if cfg.CredentialsJSON != "" || cfg.CredentialsSSMParam == "" {
		return nil
	}
	param := cfg.CredentialsSSMParam
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read credentials parameter %s: %w", param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return fmt.Errorf("credentials parameter %s is empty", param)
	}
	cfg.CredentialsJSON = aws.ToString(out.Parameter.Value)
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Credentials loaded from SSM")
	return nil
}

// Components are the assembled collaborators of one process.
type Components struct {
	Pipeline *pipeline.Pipeline
	Vision   *vision.Client
	Archive  *archive.Manager
	Ledger   *store.Ledger
}

// Assemble builds the pipeline over blobs. The ledger is created only when
// dynamo is non-nil and a table is configured.
func Assemble(cfg *config.Config, blobs blobstore.Store, dynamo store.DynamoAPI, observer pipeline.Observer) (*Components, error) {
	if blobs == nil {
		return nil, errors.New("lambdaboot: blob store is required")
	}

	var opts []vision.Option
	if cfg.VisionEndpoint != "" {
		opts = append(opts, vision.WithEndpoint(cfg.VisionEndpoint))
	}
	c := &Components{
		Vision:  vision.NewClient(opts...),
		Archive: archive.NewManager(blobs, cfg.ArchiveOptions()),
	}

	deps := pipeline.Deps{
		Credentials: auth.NewResolver(cfg.AuthOptions(vision.Scopes())),
		Annotator:   c.Vision,
		Publisher:   c.Archive,
		Observer:    observer,
	}
	if dynamo != nil && cfg.LedgerTable != "" {
		c.Ledger = store.NewLedger(dynamo, cfg.LedgerTable)
		deps.Ledger = c.Ledger
	}

	p, err := pipeline.New(cfg.PipelineConfig(), deps)
	if err != nil {
		return nil, err
	}
	c.Pipeline = p
	return c, nil
}

// StartupLog starts the cold-start event with the settings common to every
// binary.
func StartupLog(name string, initStart time.Time, cfg *config.Config) *logging.StartupLogger {
	return logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Bucket("results", cfg.ResultsBucket).
		Bucket("archive", cfg.ArchiveBucket).
		DynamoTable("ledger", cfg.LedgerTable).
		SSMParam("credentials", cfg.CredentialsSSMParam).
		Endpoint("vision", cfg.VisionEndpoint).
		Endpoint("s3", cfg.S3EndpointURL).
		Feature("ledger", cfg.LedgerTable != "").
		ConfigMap(cfg.Summary())
}
