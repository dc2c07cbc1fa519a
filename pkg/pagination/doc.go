// Package pagination drives bounded-concurrency fetch-then-insert pipelines
// over offset/limit paginated remote collections.
//
// The offset range [0, totalCount) is split into rounds of at most
// MaxConcurrent pages. All pages of a round are fetched concurrently, each
// followed by the insert of its own batch. The next round only starts after
// every task of the current round has finished and the inter-round delay has
// elapsed, so no more than MaxConcurrent fetches are ever outstanding.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.Name = "sets"
//	err := pagination.Paginate(ctx, cfg, total,
//		pagination.FetchFunc[catalog.CardSet](fetchSets),
//		pagination.InsertFunc[catalog.CardSet](insertSets),
//		func(percent int) { fmt.Println(percent) },
//	)
//
// The paginator:
//   - Issues each offset exactly once; the final page limit is clipped at totalCount
//   - Waits for every task of a round before starting the next one
//   - Sleeps RoundDelay between rounds as a courtesy to the remote API
//   - Reports floor(roundStart/totalCount*100) after each round
//   - Stops at the first failed task and returns a *PageError
package pagination
