package main

import (
	"context"
	"fmt"
	"path/filepath"

	v1 "github.com/dirpack/dirpack/apis/v1"
	"github.com/urfave/cli/v3"
)

var packCommand = &cli.Command{
	Name:  "pack",
	Usage: "Archive a directory into a container file",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "root",
			UsageText: "The directory to archive",
		},
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Path of the archive to create (default: <root>.zip)",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Container format: zip, tar.gz, tar.zst or 7z (default: inferred from output)",
		},
		&cli.StringSliceFlag{
			Name:    "pattern",
			Aliases: []string{"p"},
			Usage:   "Extra gitignore-syntax exclude pattern (can be repeated)",
		},
		&cli.BoolFlag{
			Name:  "no-gitignore",
			Usage: "Do not load <root>/.gitignore",
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "Accepted for compatibility; archives are never encrypted",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		root := command.StringArg("root")
		if root == "" {
			return fmt.Errorf("no root directory provided")
		}

		output := command.String("output")
		if output == "" {
			output = filepath.Base(filepath.Clean(root)) + ".zip"
		}

		job := v1.ArchiveJob{
			Kind:     "ArchiveJob",
			Metadata: v1.Metadata{Name: filepath.Base(filepath.Clean(root))},
			Spec: v1.ArchiveJobSpec{
				Root:     root,
				Output:   output,
				Format:   command.String("format"),
				Password: command.String("password"),
				Ignore: &v1.IgnoreSpec{
					DisableGitignore: command.Bool("no-gitignore"),
					Patterns:         command.StringSlice("pattern"),
				},
			},
		}

		return executeJob(ctx, logger, job)
	},
}
