package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/service/imagestore"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// ImageStore holds the Cloud Storage destination of persisted images
type ImageStore struct {
	bucket string
	prefix string
}

func (x *ImageStore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "image-bucket",
			Usage:       "Cloud Storage bucket for images of stored references (images are not kept when empty)",
			Category:    "Image Store",
			Sources:     cli.EnvVars("ARGUS_IMAGE_BUCKET"),
			Destination: &x.bucket,
		},
		&cli.StringFlag{
			Name:        "image-prefix",
			Usage:       "Object name prefix in the image bucket",
			Category:    "Image Store",
			Sources:     cli.EnvVars("ARGUS_IMAGE_PREFIX"),
			Destination: &x.prefix,
		},
	}
}

func (x ImageStore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
	)
}

// Configure returns nil when no bucket is set
func (x *ImageStore) Configure(ctx context.Context) (*imagestore.GCS, error) {
	if x.bucket == "" {
		return nil, nil
	}

	store, err := imagestore.New(ctx, x.bucket, imagestore.WithPrefix(x.prefix))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create image store", goerr.V("bucket", x.bucket))
	}
	logging.Default().Info("Storing reference images", "bucket", x.bucket, "prefix", x.prefix)
	return store, nil
}
