package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mahyarmirrashed/fileorg/internal/config"
	"github.com/mahyarmirrashed/fileorg/internal/daemon"
	"github.com/mahyarmirrashed/fileorg/internal/organizer"
	"github.com/mahyarmirrashed/fileorg/internal/utils"
	godaemon "github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	altsrc "github.com/urfave/cli-altsrc/v3"
	altyaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
)

// Set at build time: go build -ldflags "-X main.version=1.2.3"
var version = "dev"

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// sources lets a flag be set from FILEORG_<KEY> or from key in the YAML config file.
func sources(configFile *string, key string) cli.ValueSourceChain {
	env := "FILEORG_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		altyaml.YAML(key, altsrc.NewStringPtrSourcer(configFile)),
	)
}

func newCommand() *cli.Command {
	var configFile string

	return &cli.Command{
		Name:      "fileorg",
		Usage:     "copy or move files out of a directory tree",
		UsageText: "fileorg --copy|--cut [--dir DIR] [--save DIR] [--extensions LIST] [--file_name LIST] [options]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file",
				Sources:     cli.EnvVars("FILEORG_CONFIG"),
				Value:       ".fileorg.yaml",
				Destination: &configFile,
			},
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "source directory to scan",
				Sources: sources(&configFile, "dir"),
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "save",
				Usage:   "destination directory",
				Sources: sources(&configFile, "save"),
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:    "extensions",
				Usage:   "extensions to transfer (repeat or comma-separated)",
				Sources: sources(&configFile, "extensions"),
			},
			&cli.StringSliceFlag{
				Name:    "file_name",
				Usage:   "file names to transfer (repeat or comma-separated)",
				Sources: sources(&configFile, "file_name"),
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Usage:   "glob patterns to skip, relative to --dir (repeat or comma-separated)",
				Sources: sources(&configFile, "exclude"),
			},
			&cli.BoolFlag{
				Name:    "preserve",
				Aliases: []string{"preserve-structure"},
				Usage:   "keep paths relative to --dir under --save",
				Sources: sources(&configFile, "preserve"),
			},
			&cli.BoolFlag{
				Name:    "preserve-own-folder",
				Usage:   "place results in a folder named after --dir inside --save",
				Sources: sources(&configFile, "preserve-own-folder"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"dry-run"},
				Usage:   "print what would happen without touching any file",
				Sources: sources(&configFile, "debug"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logging level: debug, info, warn, error",
				Sources: sources(&configFile, "log-level"),
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Usage:   "keep running and handle files created under --dir",
				Sources: sources(&configFile, "watch"),
			},
			&cli.BoolFlag{
				Name:    "daemonize",
				Usage:   "run the watcher as a daemon",
				Sources: sources(&configFile, "daemonize"),
			},
			&cli.DurationFlag{
				Name:    "delay",
				Usage:   "wait before handling a created file in watch mode",
				Sources: sources(&configFile, "delay"),
			},
			&cli.BoolFlag{
				Name:    "notify",
				Usage:   "send desktop notifications",
				Sources: sources(&configFile, "notify"),
			},
			&cli.StringFlag{
				Name:    "report",
				Usage:   "write a YAML summary of the run to this file",
				Sources: sources(&configFile, "report"),
			},
		},
		MutuallyExclusiveFlags: []cli.MutuallyExclusiveFlags{
			{
				Required: true,
				Flags: [][]cli.Flag{
					{
						&cli.BoolFlag{
							Name:    "copy",
							Usage:   "copy files, leaving the source intact",
							Sources: sources(&configFile, "copy"),
						},
					},
					{
						&cli.BoolFlag{
							Name:    "cut",
							Usage:   "move files, removing them from the source",
							Sources: sources(&configFile, "cut"),
						},
					},
				},
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", config.ErrConfiguration, cmd.Args().First())
	}

	cfg := configFromCommand(cmd)
	setLogLevel(cfg.LogLevel)

	org, err := organizer.New(cfg, organizer.WithOutput(cmd.Root().Writer))
	if err != nil {
		return err
	}

	// Only daemonize if config says so
	if cfg.Daemonize {
		daemonCtx := &godaemon.Context{
			PidFileName: "fileorg.pid",
			PidFilePerm: 0644,
			LogFileName: "fileorg.log",
			LogFilePerm: 0640,
			WorkDir:     "./",
			Umask:       027,
		}

		d, err := daemonCtx.Reborn()
		if err != nil {
			return fmt.Errorf("unable to daemonize: %w", err)
		}
		if d != nil {
			return nil // Parent process exits
		}
		defer daemonCtx.Release()
		log.Info("Daemon started")
	}

	if cfg.DryRun {
		log.Info("Dry run: no file will be changed")
	}

	summary, err := org.Run()
	if err != nil {
		return err
	}

	if cfg.Report != "" {
		if err := organizer.WriteReport(cfg.Report, summary); err != nil {
			log.Errorf("Failed to write report: %v", err)
		}
	}

	if !cfg.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := daemon.New(org)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx)
}

// configFromCommand assembles the run configuration from parsed flags.
func configFromCommand(cmd *cli.Command) config.Config {
	cfg := config.Config{
		Source:            utils.ExpandTilde(cmd.String("dir")),
		Destination:       utils.ExpandTilde(cmd.String("save")),
		Extensions:        config.SplitList(cmd.StringSlice("extensions")),
		FileNames:         config.SplitList(cmd.StringSlice("file_name")),
		Exclude:           config.SplitList(cmd.StringSlice("exclude")),
		PreserveStructure: cmd.Bool("preserve"),
		PreserveOwnFolder: cmd.Bool("preserve-own-folder"),
		DryRun:            cmd.Bool("debug"),
		LogLevel:          cmd.String("log-level"),
		Watch:             cmd.Bool("watch"),
		Daemonize:         cmd.Bool("daemonize"),
		Delay:             cmd.Duration("delay"),
		Notifications:     cmd.Bool("notify"),
		Report:            utils.ExpandTilde(cmd.String("report")),
	}

	switch {
	case cmd.Bool("copy"):
		cfg.Mode = config.ModeCopy
	case cmd.Bool("cut"):
		cfg.Mode = config.ModeMove
	}

	return cfg
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
