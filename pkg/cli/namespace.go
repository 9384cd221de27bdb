package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdNamespace() *cli.Command {
	var svcCfg serviceConfig

	// withServices runs fn with the admin services and prints its result as JSON
	withServices := func(fn func(ctx context.Context, c *cli.Command, svc *services) (any, error)) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
			svc, err := svcCfg.build(ctx, buildAdmin)
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := fn(ctx, c, svc)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, out)
		}
	}

	requireArg := func(c *cli.Command, name string) (string, error) {
		if c.Args().Len() < 1 {
			return "", goerr.New(name + " is required")
		}
		return c.Args().First(), nil
	}

	var description string
	var page, limit int

	return &cli.Command{
		Name:    "namespace",
		Aliases: []string{"ns"},
		Usage:   "Manage namespaces and their reference cases",
		Flags:   svcCfg.Flags(),
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List namespaces",
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					return svc.uc.Namespace.List(ctx)
				}),
			},
			{
				Name:      "create",
				Usage:     "Register a namespace",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "description",
						Usage:       "Description of the namespace",
						Destination: &description,
					},
				},
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					name, err := requireArg(c, "namespace name")
					if err != nil {
						return nil, err
					}
					return svc.uc.Namespace.Create(ctx, name, description)
				}),
			},
			{
				Name:      "clear",
				Usage:     "Delete every reference case of a namespace",
				ArgsUsage: "<name>",
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					name, err := requireArg(c, "namespace name")
					if err != nil {
						return nil, err
					}
					if err := svc.uc.Namespace.Clear(ctx, name); err != nil {
						return nil, err
					}
					return map[string]any{"namespace": name, "cleared": true}, nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a namespace and its reference cases",
				ArgsUsage: "<name>",
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					name, err := requireArg(c, "namespace name")
					if err != nil {
						return nil, err
					}
					if err := svc.uc.Namespace.Delete(ctx, name); err != nil {
						return nil, err
					}
					return map[string]any{"namespace": name, "deleted": true}, nil
				}),
			},
			{
				Name:      "stats",
				Usage:     "Count the reference cases of a namespace per category",
				ArgsUsage: "<name>",
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					name, err := requireArg(c, "namespace name")
					if err != nil {
						return nil, err
					}
					return svc.uc.Namespace.Stats(ctx, name)
				}),
			},
			{
				Name:      "vectors",
				Usage:     "List the reference cases of a namespace, newest first",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Usage: "Page number starting at 1", Value: 1, Destination: &page},
					&cli.IntFlag{Name: "limit", Usage: "Cases per page", Value: model.DefaultPageLimit, Destination: &limit},
				},
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					name, err := requireArg(c, "namespace name")
					if err != nil {
						return nil, err
					}
					return svc.uc.Namespace.ListReferences(ctx, name, page, limit)
				}),
			},
			{
				Name:      "delete-vector",
				Usage:     "Delete one reference case",
				ArgsUsage: "<name> <id>",
				Action: withServices(func(ctx context.Context, c *cli.Command, svc *services) (any, error) {
					if c.Args().Len() < 2 {
						return nil, goerr.New("namespace name and reference ID are required")
					}
					name, id := c.Args().Get(0), model.ReferenceID(c.Args().Get(1))
					if err := svc.uc.Namespace.DeleteReference(ctx, name, id); err != nil {
						return nil, err
					}
					return map[string]any{"namespace": name, "id": id, "deleted": true}, nil
				}),
			},
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}

