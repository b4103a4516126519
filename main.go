package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tkintscher/exonum/internal/commands"
	"github.com/tkintscher/exonum/internal/storage"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	flags := &commands.Flags{}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "exonum",
		Usage:   "Service runtime tooling for an exonum node",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("EXONUM_LOG_LEVEL"),
				Value:   "warn",
				// optimize-config has its own --log-level for the database.
				Local: true,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			flags.LogLevel = level.String()
			log.Logger = log.Level(level)

			return ctx, nil
		},
		Commands: []*cli.Command{
			optimizeConfigCommand(flags),
			artifactsCommand(flags),
		},
	}

	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run exonum")
	}
}

func optimizeConfigCommand(flags *commands.Flags) *cli.Command {
	return &cli.Command{
		Name:      "optimize-config",
		Usage:     "Rewrite the database options of a node config with tuned values",
		ArgsUsage: "[NODE_CONFIG]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write the result here instead of NODE_CONFIG",
			},
			&cli.IntFlag{
				Name:  "max-open-files",
				Usage: fmt.Sprintf("max number of open database files (default %d)", commands.DefaultMaxOpenFiles),
			},
			&cli.UintFlag{
				Name:  "max-total-wal-size",
				Usage: fmt.Sprintf("max total write-ahead log size in bytes (default %d)", commands.DefaultMaxTotalWalSize),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: fmt.Sprintf("database log level: debug, info, warn, error, fatal, header (default %s)", commands.DefaultLogLevel),
			},
			&cli.UintFlag{
				Name:  "max-log-file-size",
				Usage: fmt.Sprintf("size in bytes at which the database log rotates (default %d)", commands.DefaultMaxLogFileSize),
			},
			&cli.UintFlag{
				Name:  "keep-log-file-num",
				Usage: fmt.Sprintf("number of rotated database logs to keep (default %d)", commands.DefaultKeepLogFileNum),
			},
			&cli.BoolFlag{
				Name:  "recycle-log-files",
				Usage: "reuse old database log files",
			},
			&cli.BoolFlag{
				Name:  "skip-defaults",
				Usage: "only change the options given explicitly",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts, err := optimizeConfigOptions(c)
			if err != nil {
				return err
			}

			ctrl := commands.NewController(flags, log.Logger)
			path, err := ctrl.OptimizeConfig(ctx, opts)
			if err != nil {
				return err
			}

			fmt.Println(path)
			return nil
		},
	}
}

func optimizeConfigOptions(c *cli.Command) (commands.OptimizeConfigOptions, error) {
	opts := commands.OptimizeConfigOptions{
		NodeConfigFile: c.Args().First(),
		OutputFile:     c.String("output"),
		SkipDefaults:   c.Bool("skip-defaults"),
	}

	if c.IsSet("max-open-files") {
		n := int64(c.Int("max-open-files"))
		if n < 0 || n > math.MaxInt32 {
			return opts, fmt.Errorf("max-open-files out of range: %d", n)
		}
		v := int32(n)
		opts.MaxOpenFiles = &v
	}
	if c.IsSet("max-total-wal-size") {
		v := uint64(c.Uint("max-total-wal-size"))
		opts.MaxTotalWalSize = &v
	}
	if c.IsSet("log-level") {
		v, err := storage.ParseLogVerbosity(c.String("log-level"))
		if err != nil {
			return opts, err
		}
		opts.LogLevel = &v
	}
	if c.IsSet("max-log-file-size") {
		v := uint64(c.Uint("max-log-file-size"))
		opts.MaxLogFileSize = &v
	}
	if c.IsSet("keep-log-file-num") {
		v := uint64(c.Uint("keep-log-file-num"))
		opts.KeepLogFileNum = &v
	}
	if c.IsSet("recycle-log-files") {
		v := c.Bool("recycle-log-files")
		opts.RecycleLogFiles = &v
	}

	return opts, nil
}

func artifactsCommand(flags *commands.Flags) *cli.Command {
	return &cli.Command{
		Name:      "artifacts",
		Usage:     "List the WASM service artifacts found in the node's services directory",
		ArgsUsage: "[NODE_CONFIG]",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctrl := commands.NewController(flags, log.Logger)
			specs, err := ctrl.ListArtifacts(ctx, c.Args().First())
			if err != nil {
				return err
			}

			for _, spec := range specs {
				fmt.Println(spec)
			}
			return nil
		},
	}
}
