package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tutorcore/internal"
	"github.com/starford/tutorcore/internal/curriculum"
	pkgconfig "github.com/starford/tutorcore/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	path := cmd.String("config")
	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		slog.Warn("config file not found, using defaults", slog.String("path", path))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func seed(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Seed(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func validateCurriculum(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Curriculum.Path
	}
	if path == "" {
		return fmt.Errorf("no curriculum file given and curriculum.path is not configured")
	}

	g, err := curriculum.LoadFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d skills\n", path, g.Len())
	for i, id := range g.Order() {
		prereqs := g.Prereqs(id)
		if len(prereqs) == 0 {
			fmt.Printf("%3d. %s\n", i+1, id)
			continue
		}
		fmt.Printf("%3d. %s <- %s\n", i+1, id, strings.Join(prereqs, ", "))
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "tutorcore",
		Usage:   "Graph-grounded tutoring backend with Bayesian knowledge tracing and curriculum gating",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and vault watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tutoring tools over MCP stdio",
				Action: mcp,
			},
			{
				Name:   "seed",
				Usage:  "Sync the vault into the concept graph once and print the counts",
				Action: seed,
			},
			{
				Name:      "validate-curriculum",
				Usage:     "Check a curriculum file for unknown prerequisites and cycles",
				ArgsUsage: "[file]",
				Action:    validateCurriculum,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
