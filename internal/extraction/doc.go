// Package extraction drives AI task extraction.
//
// An Orchestrator sends source text to a provider.Client, retrying
// transient failures with linear backoff, normalizes the model output and
// triages every candidate into exactly one of three decisions:
//
//   - create: confidence at or above AutoAcceptThreshold, becomes a Task
//   - queue: lower confidence, goes to the approval queue
//   - discard: no usable title, or the item belongs to someone else
//
// Extract only previews; nothing is persisted until Apply. ProcessNote runs
// both for the automatic note flow.
//
// # Concurrency
//
// One extraction runs at a time per Orchestrator. A call made while another
// is in flight returns ErrBusy without contacting the provider.
//
// # Usage
//
//	orch, err := extraction.New(extraction.ConfigFromApp(cfg.Extraction, cfg.Provider.NameVariants),
//	    client, store, queue, logger)
//	res, err := orch.Extract(ctx, extraction.Request{SourceText: text})
//	res, err = orch.Apply(ctx, res, extraction.Source{Origin: tasks.OriginManual})
package extraction
