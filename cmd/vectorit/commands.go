package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/vectorit"
	"github.com/poiesic/vectorit/chunking"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/extract"
	"github.com/poiesic/vectorit/ingestion"
)

// withEngine runs fn against an engine built from the loaded configuration.
func withEngine(c *cli.Context, fn func(ctx context.Context, e *vectorit.Engine) error, opts ...vectorit.EngineOption) error {
	base, _ := c.App.Metadata[engineOptionsKey].([]vectorit.EngineOption)
	all := append(slices.Clone(base), opts...)
	e, err := vectorit.NewEngine(c.Context, append(all, vectorit.WithConfig(configFrom(c)))...)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(c.Context, e)
}

func taskID(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", errors.New("task ID is required")
	}
	return id, nil
}

func ingestOptions(c *cli.Context) (*ingestion.IngestOptions, error) {
	opts := &ingestion.IngestOptions{
		Format:    c.String("format"),
		BatchSize: c.Int("batch-size"),
		Timeout:   c.Duration("timeout"),
	}
	if c.IsSet("max-retries") {
		retries := c.Int("max-retries")
		opts.MaxRetries = &retries
	}
	if c.IsSet("priority") {
		p, err := core.ParsePriority(c.String("priority"))
		if err != nil {
			return nil, err
		}
		opts.Priority = &p
	}
	return opts, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	opts, err := ingestOptions(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	wait := !c.Bool("no-wait")
	var engineOpts []vectorit.EngineOption
	var progress *progressObserver
	if wait {
		progress = newProgressObserver(c.App.ErrWriter)
		engineOpts = append(engineOpts, vectorit.WithObserver(progress))
	}

	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		var results []*ingestion.IngestResult
		if c.Bool("object") {
			for _, key := range c.Args().Slice() {
				res, err := e.IngestObject(ctx, key, opts)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
		} else {
			results, err = e.IngestFiles(ctx, c.Args().Slice(), opts)
			if err != nil {
				return err
			}
		}

		total := 0
		for _, res := range results {
			total += res.Chunks
			parts := ""
			if res.Schedule.WasSplit {
				parts = fmt.Sprintf(" in %d parts", len(res.Schedule.SubTaskIDs))
			}
			fmt.Fprintf(c.App.Writer, "scheduled %s: %d chunks%s, task %s (estimate %s)\n",
				res.Key, res.Chunks, parts, res.Schedule.MainTaskID, res.Schedule.EstimatedTime)
		}
		if !wait {
			return nil
		}

		progress.start(total)
		if err := e.Start(ctx); err != nil {
			return err
		}
		err := e.WaitIdle(ctx)
		progress.finish()
		fmt.Fprintln(c.App.ErrWriter)
		if err != nil {
			return err
		}

		for _, res := range results {
			report, err := e.Scheduler().GetTaskStatus(ctx, res.Schedule.MainTaskID)
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%s: %s", res.Key, report.Status)
			if report.Error != "" {
				line += " (" + report.Error + ")"
			}
			fmt.Fprintln(c.App.Writer, line)
		}
		return nil
	}, engineOpts...)
}

func workerCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		if err := e.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.App.ErrWriter, "worker running, press Ctrl+C to stop")
		<-ctx.Done()
		e.Stop()
		stats := e.Processor().Stats()
		fmt.Fprintf(c.App.Writer, "completed %d, failed %d, cancelled %d\n",
			stats.CompletedTasks, stats.FailedTasks, stats.CancelledTasks)
		return nil
	})
}

func statusCommand(c *cli.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		report, err := e.Scheduler().GetTaskStatus(ctx, id)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(out)
		return err
	})
}

func cancelCommand(c *cli.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		if err := e.Scheduler().CancelTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "cancelled %s\n", id)
		return nil
	})
}

func retryCommand(c *cli.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		if err := e.Scheduler().RetryTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "requeued %s\n", id)
		return nil
	})
}

func priorityCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: priority TASK_ID LEVEL")
	}
	id := c.Args().Get(0)
	p, err := core.ParsePriority(c.Args().Get(1))
	if err != nil {
		return err
	}
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		if err := e.Scheduler().SetTaskPriority(ctx, id, p); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s priority set to %s\n", id, p)
		return nil
	})
}

func cleanupCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		n, err := e.Scheduler().CleanupOldTasks(ctx, c.Duration("max-age"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "removed %d tasks\n", n)
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		s, err := e.Scheduler().GetQueueStats(ctx)
		if err != nil {
			return err
		}
		w := c.App.Writer
		fmt.Fprintf(w, "total: %d\n", s.Total)
		fmt.Fprintf(w, "pending: %d\n", s.Pending)
		fmt.Fprintf(w, "processing: %d\n", s.Processing)
		fmt.Fprintf(w, "completed: %d\n", s.Completed)
		fmt.Fprintf(w, "failed: %d\n", s.Failed)
		fmt.Fprintf(w, "cancelled: %d\n", s.Cancelled)
		fmt.Fprintf(w, "split documents: %d\n", s.Parents)
		return nil
	})
}

func chunkCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("file is required")
	}
	cfg := configFrom(c)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	extractor, err := extract.New()
	if err != nil {
		return err
	}
	doc, err := extractor.Extract(c.Context, path, c.String("format"), data)
	if err != nil {
		return err
	}
	chunkOpts, err := cfg.Chunking.Options()
	if err != nil {
		return err
	}
	chunker, err := chunking.New(chunkOpts...)
	if err != nil {
		return err
	}

	chunks := chunker.Chunk(doc.Text, string(doc.FileType), doc.Size)
	w := c.App.Writer
	fmt.Fprintf(w, "%s: %s, %d bytes, %d chunks\n", path, doc.FileType, doc.Size, len(chunks))
	for _, ch := range chunks {
		label := string(ch.Metadata.Type)
		switch {
		case ch.Metadata.Heading != "":
			label += " " + ch.Metadata.Heading
		case ch.Metadata.Declaration != "":
			label += " " + ch.Metadata.Declaration
		}
		fmt.Fprintf(w, "#%d %s tokens=%d [%d,%d)\n", ch.Index, label, ch.TokenCount, ch.StartPosition, ch.EndPosition)
		if c.Bool("content") {
			fmt.Fprintln(w, indent(ch.Content))
		}
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return errors.New("query is required")
	}
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		results, err := e.Search(ctx, query, c.Int("limit"))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(c.App.Writer, "no results")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(c.App.Writer, "%d. %.3f %s#%d\n%s\n", i+1, r.Score, r.Chunk.FileKey, r.Chunk.ChunkIndex, indent(snippet(r.Chunk.Content, 200)))
		}
		return nil
	})
}

func sourcesCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		keys, err := e.ListObjects(ctx, c.Args().First())
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(c.App.Writer, key)
		}
		return nil
	})
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx
	return withEngine(c, func(ctx context.Context, e *vectorit.Engine) error {
		_, err := e.Reembed(ctx, c.App.ErrWriter)
		return err
	})
}

func configCommand(c *cli.Context) error {
	out, err := configFrom(c).YAML()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(out)
	return err
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
