package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/utils/logging"
)

func TestFromFallsBackToDefault(t *testing.T) {
	gt.Value(t, logging.From(context.Background())).Equal(logging.Default())
}

func TestWithEmbedsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelDebug, logging.FormatJSON)
	ctx := logging.With(context.Background(), logger)

	logging.From(ctx).Info("hello", "namespace", "plant_a")
	gt.String(t, buf.String()).Contains("plant_a")
}

func TestSecretsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON)

	type credentials struct {
		APIKey string
		Host   string
	}
	logger.Info("configured", "creds", credentials{APIKey: "sk-very-secret", Host: "localhost"})

	gt.Bool(t, strings.Contains(buf.String(), "sk-very-secret")).False()
	gt.String(t, buf.String()).Contains("localhost")
}
