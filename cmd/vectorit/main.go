// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/vectorit"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the CLI. engineOpts are applied to every engine a command
// creates.
func newApp(engineOpts ...vectorit.EngineOption) *cli.App {
	return &cli.App{
		Name:  "vectorit",
		Usage: "Chunk, schedule and embed documents into a searchable vector store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML, TOML or JSON config file",
				EnvVars: []string{"VECTORIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file (default .env if present)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file with size-based rotation",
			},
		},
		Metadata: map[string]any{engineOptionsKey: engineOpts},
		Before:   setup,
		After:    teardown,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Schedule documents and embed them to completion",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "object",
						Usage: "Treat arguments as keys in the configured object store",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Declared format or MIME type (detected when empty)",
					},
					&cli.StringFlag{
						Name:  "priority",
						Usage: "Task priority (low, normal, high, urgent)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Chunks per embedding request (0 uses the configured default)",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retry attempts per failed chunk (configured default when unset)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Per-task timeout (0 uses the execution budget)",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Only schedule; leave processing to a worker",
					},
				},
			},
			{
				Name:   "worker",
				Usage:  "Process queued tasks until interrupted",
				Action: workerCommand,
			},
			{
				Name:      "status",
				Usage:     "Show a task's status, aggregating split documents",
				ArgsUsage: "TASK_ID",
				Action:    statusCommand,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task and its sub-tasks",
				ArgsUsage: "TASK_ID",
				Action:    cancelCommand,
			},
			{
				Name:      "retry",
				Usage:     "Requeue a failed task or the failed parts of a split document",
				ArgsUsage: "TASK_ID",
				Action:    retryCommand,
			},
			{
				Name:      "priority",
				Usage:     "Change a task's priority",
				ArgsUsage: "TASK_ID LEVEL",
				Action:    priorityCommand,
			},
			{
				Name:   "cleanup",
				Usage:  "Remove finished tasks older than --max-age",
				Action: cleanupCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Age after which finished tasks are removed",
						Value: 7 * 24 * time.Hour,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show queue statistics",
				Action: statsCommand,
			},
			{
				Name:      "chunk",
				Usage:     "Preview how a file is chunked",
				ArgsUsage: "FILE",
				Action:    chunkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Declared format or MIME type (detected when empty)",
					},
					&cli.BoolFlag{
						Name:  "content",
						Usage: "Print chunk contents",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the chunks most similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (0 uses search.max_hits)",
					},
				},
			},
			{
				Name:      "sources",
				Usage:     "List documents in the configured object store",
				ArgsUsage: "[PREFIX]",
				Action:    sourcesCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every stored vector with the configured embedding model",
				Action: reembedCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: configCommand,
			},
		},
	}
}
