// Package vidscribe provides a credit-metered AI subtitle job engine for Go applications.
//
// Vidscribe is designed as a library, not a service. Import it directly into your Go
// application to meter subtitle rendering against a per-user credit ledger. It provides:
//
//   - A crash-safe credit ledger with local-first reads and background reconciliation
//   - Exactly-once settlement of subscription grants and credit pack purchases
//   - A single-flight job pipeline: validate, reserve, upload, poll, download
//   - Automatic refunds for any job that terminates without a result
//   - Pluggable storage (memory, SQLite, Postgres, MongoDB)
//   - Lifecycle plugins for metrics and audit trails
//
// # Quick Start
//
// Create a session with your preferred store:
//
//	import (
//	    "github.com/vidscribe/vidscribe"
//	    "github.com/vidscribe/vidscribe/identity"
//	    "github.com/vidscribe/vidscribe/remote"
//	    "github.com/vidscribe/vidscribe/store/sqlite"
//	)
//
//	st := sqlite.New(db) // db is a grove.DB opened with sqlitedriver
//
//	s := vidscribe.New(st,
//	    vidscribe.WithIdentity(&identity.Static{ID: userID}),
//	    vidscribe.WithRemoteClient(remote.NewHTTPClient(apiKey)),
//	)
//
//	// Start the session (migrates the store, begins background workers)
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Stop()
//
// # Core Concepts
//
// Credits are the unit of account: one credit per started minute of
// video, minimum one. A new user starts with five credits.
//
//	if s.HasSufficientCredits(videoDuration) {
//	    j, err := s.SubmitJob(ctx, "clip.mp4", job.DefaultOptions())
//	    ...
//	    err = s.WaitJob(ctx)
//	}
//
// Credits are reserved when a job passes validation and refunded in
// full if the job fails, times out, or is cancelled. Refunds that
// cannot be applied immediately are retried by the background
// reconciler, so a crash between failure and refund never strands
// credits.
//
// Settlement turns payment-platform state into ledger credits:
// subscription tiers grant their monthly allowance on a rolling
// 28-day cycle, and one-time credit pack purchases are credited
// exactly once, keyed by the platform transaction ID.
//
//	summary, err := s.SyncSettlement(ctx)
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	user_01h2xcejqtf2nbrexx3vqjhp41  // User ID
//	job_01h2xcejqtf2nbrexx3vqjhp41   // Job ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package vidscribe
