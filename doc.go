// Package vectorit turns documents into searchable embedding vectors under a
// per-invocation time budget.
//
// Documents are extracted, chunked and scheduled as tasks on a priority
// queue. Tasks whose estimated embedding time exceeds the budget are split
// into parts. A background processor embeds queued tasks with bounded
// concurrency, and completed results are stored in a vector repository that
// the searcher queries.
//
// The Engine wires every component from a config.Config:
//
//	cfg, err := config.Load("vectorit.yaml")
//	engine, err := vectorit.NewEngine(ctx, vectorit.WithConfig(cfg))
//	defer engine.Close()
//	engine.Start(ctx)
//	engine.IngestFiles(ctx, []string{"docs/guide.md"}, nil)
//	engine.WaitIdle(ctx)
//	results, err := engine.Search(ctx, "how are tasks split?", 5)
package vectorit
