package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/usecase"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// inputFlags are the per-image options shared by validate and train
type inputFlags struct {
	category    string
	state       string
	namespace   string
	prompt      string
	description string
	format      string
}

func (x *inputFlags) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "category",
			Usage:       "Category of the images. Without it category and state are read from folder names like 03-Connector Plates/02-Bent",
			Destination: &x.category,
		},
		&cli.StringFlag{
			Name:        "state",
			Usage:       "Expected state of the images",
			Destination: &x.state,
		},
		&cli.StringFlag{
			Name:        "namespace",
			Aliases:     []string{"n"},
			Usage:       "Namespace of the reference cases",
			Sources:     cli.EnvVars("ARGUS_NAMESPACE"),
			Destination: &x.namespace,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Question for the judge instead of the category prompt",
			Destination: &x.prompt,
		},
		&cli.StringFlag{
			Name:        "description",
			Usage:       "Additional context appended to the judge question",
			Destination: &x.description,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Output format (text, json)",
			Value:       formatText,
			Destination: &x.format,
		},
	}
}

func (x *inputFlags) template(training, persist bool) usecase.ValidationInput {
	return usecase.ValidationInput{
		Category:      x.category,
		ExpectedState: x.state,
		Namespace:     x.namespace,
		Prompt:        x.prompt,
		Description:   x.description,
		Training:      training,
		Persist:       persist,
	}
}

func cmdValidate() *cli.Command {
	var svcCfg serviceConfig
	var input inputFlags
	var persist bool

	flags := input.Flags()
	flags = append(flags, &cli.BoolFlag{
		Name:        "persist",
		Usage:       "Store each validated image as a reference case",
		Destination: &persist,
	})
	flags = append(flags, svcCfg.Flags()...)

	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate images against their expected state",
		ArgsUsage: "<image or directory>...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runBatch(ctx, c, &svcCfg, input.template(false, persist), input.format)
		},
	}
}

func cmdTrain() *cli.Command {
	var svcCfg serviceConfig
	var input inputFlags

	flags := input.Flags()
	flags = append(flags, svcCfg.Flags()...)

	return &cli.Command{
		Name:      "train",
		Aliases:   []string{"t"},
		Usage:     "Store images as ground truth reference cases",
		ArgsUsage: "<image or directory>...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runBatch(ctx, c, &svcCfg, input.template(true, false), input.format)
		},
	}
}

func runBatch(ctx context.Context, c *cli.Command, svcCfg *serviceConfig, template usecase.ValidationInput, format string) error {
	if c.Args().Len() == 0 {
		return goerr.New("at least one image or directory is required")
	}

	files, err := collectImages(c.Args().Slice())
	if err != nil {
		return err
	}
	items, err := loadBatch(files, template)
	if err != nil {
		return err
	}

	mode := buildValidation
	if template.Training {
		mode = buildTraining
	}
	svc, err := svcCfg.build(ctx, mode)
	if err != nil {
		return err
	}
	defer svc.Close()

	logging.Default().Info("Processing images", "count", len(items), "training", template.Training)
	results := svc.uc.Validation.ValidateBatch(ctx, items)

	for _, r := range results {
		if r.Err != nil {
			logging.Default().Warn("image failed", "path", r.Name, logging.ErrAttr(r.Err))
		}
	}

	summary, err := writeReport(c.Root().Writer, format, results)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return goerr.New(fmt.Sprintf("%d of %d images failed", summary.Failed, summary.Total))
	}
	return nil
}
