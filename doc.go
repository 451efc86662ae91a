// Package reconcile extracts structured attributes from batches of free-text
// records with a remote completion service, and reconciles what the service
// returns into one result per record.
//
// # Problem Statement
//
// A completion service answers the same question differently from one call
// to the next, fails transiently under load, and now and then wraps its JSON
// in prose. Sending thousands of short records through it one by one is slow;
// sending them all at once trips rate limits. The package provides:
//
//   - Bounded concurrency: a worker pool of configurable size, results kept in request order
//   - Retries: exponential backoff per request, refusals treated as empty answers
//   - Self-consistency: run each record several times and vote on the answers
//   - Field consensus: merge and rename discovered attribute names without duplicates
//
// # Basic Usage
//
//	client, _ := reconcile.NewGenAIClientFromKey(ctx, os.Getenv("GEMINI_API_KEY"), "gemini-2.5-flash")
//	x, _ := reconcile.NewExtractor(client,
//	    reconcile.WithConcurrency(8),
//	    reconcile.WithRetry(3, time.Second),
//	    reconcile.WithSelfConsistency(3, reconcile.StrategyMajorityVote),
//	)
//	results, err := x.Extract(ctx, reconcile.NewTextRecords("RWY 09/27 CLOSED"))
//
// Each RecordResult carries the chosen payload as a Value and, with
// self-consistency on, every round's attempt and the number of rounds the
// voter examined.
//
// # Strategies
//
//   - first_success: the first successful round wins
//   - most_confident: the payload with the most populated content wins
//   - majority_vote: the payload most similar to the others wins (default)
//
// # Field Consensus
//
// Discovery runs several analyzer roles per record and collects attribute
// proposals. Debate asks a consolidator for merges, a specializer for renames
// and a critic for vetoes, then a ConsensusEngine applies what survives:
//
//	d, _ := reconcile.NewDiscovery(client)
//	_, proposals, _ := d.Discover(ctx, records)
//	deb, _ := reconcile.NewDebate(client)
//	res, _ := deb.Run(ctx, proposals)
//
// # Instructions
//
// Instruction tags resolve through a PromptProvider. The bundled roles live
// in Twig templates rendered with Stick; DefaultPrompts loads them and
// WithTemplates overrides any of them.
//
// # Configuration
//
// LoadConfig reads reconcile.yaml and RECONCILE_* environment variables with
// viper; Config.ExtractorOptions and Config.NewClient turn the result into a
// ready extractor.
//
// # Cost Planning
//
//	plan, _ := x.Explain(records, reconcile.FormatText)
//	fmt.Println(plan)
package reconcile
