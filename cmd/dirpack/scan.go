package main

import (
	"context"
	"fmt"

	"github.com/dirpack/dirpack/internal/ignore"
	"github.com/dirpack/dirpack/internal/scan"
	"github.com/urfave/cli/v3"
)

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "List the files an archive of the directory would contain",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "root",
			UsageText: "The directory to scan",
		},
	},
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "pattern",
			Aliases: []string{"p"},
			Usage:   "Extra gitignore-syntax exclude pattern (can be repeated)",
		},
		&cli.BoolFlag{
			Name:  "no-gitignore",
			Usage: "Do not load <root>/.gitignore",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		root := command.StringArg("root")
		if root == "" {
			return fmt.Errorf("no root directory provided")
		}

		var rules *ignore.RuleSet
		if command.Bool("no-gitignore") {
			rules = &ignore.RuleSet{}
		} else {
			rules = ignore.Load(root, logger.Named("ignore"))
		}

		if patterns := command.StringSlice("pattern"); len(patterns) > 0 {
			var extra []byte
			for _, p := range patterns {
				extra = append(extra, p...)
				extra = append(extra, '\n')
			}
			rules = rules.Merge(ignore.ParseRules(extra))
		}

		scanner := scan.NewScanner(logger.Named("scan"), scan.Options{Rules: rules})
		entries, err := scanner.Scan(ctx, root)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", root, err)
		}

		for _, entry := range entries {
			fmt.Println(entry.Name)
		}

		if isInteractive(ctx) {
			fmt.Printf("\n%d files\n", len(entries))
		}

		return nil
	},
}
