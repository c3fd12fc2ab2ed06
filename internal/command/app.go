// Package command holds the petri CLI: one action per sub command, sharing the
// wiring of the api server.
package command

import (
	"github.com/urfave/cli/v2"
)

// NewApp builds the petri command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "petri",
		Usage: "submit prompts for citation analysis and keep the prompt index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "analyze a prompt, reusing the indexed request id when there is one",
				ArgsUsage: "<prompt>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "poll this request id instead of resolving the prompt"},
					&cli.BoolFlag{Name: "no-cache", Usage: "ask the service not to reuse cached completions"},
					&cli.IntFlag{Name: "completions", Usage: "number of completions to request"},
					&cli.DurationFlag{Name: "interval", Usage: "delay between status polls"},
					&cli.IntFlag{Name: "max-attempts", Usage: "status polls before giving up"},
					&cli.BoolFlag{Name: "json", Usage: "print the full results document"},
				},
				Action: AnalyzeAction,
			},
			{
				Name:  "list",
				Usage: "list indexed prompts, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "only prompts containing this text"},
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum number of prompts"},
				},
				Action: ListAction,
			},
			{
				Name:      "lookup",
				Usage:     "print the request id indexed for a prompt",
				ArgsUsage: "<prompt>",
				Action:    LookupAction,
			},
			{
				Name:      "remove",
				Usage:     "drop a prompt from the index",
				ArgsUsage: "<prompt>",
				Action:    RemoveAction,
			},
			{
				Name:      "status",
				Usage:     "print the current status of a request id",
				ArgsUsage: "<request-id>",
				Action:    StatusAction,
			},
			{
				Name:      "results",
				Usage:     "print the results document of a completed request id",
				ArgsUsage: "<request-id>",
				Action:    ResultsAction,
			},
			{
				Name:      "optimize",
				Usage:     "print optimization recommendations for a completed request id",
				ArgsUsage: "<request-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prompt", Required: true, Usage: "the prompt that was analyzed"},
				},
				Action: OptimizeAction,
			},
			{
				Name:   "watch",
				Usage:  "print the index every time it changes, until interrupted",
				Action: WatchAction,
			},
		},
	}
}
