package vidscribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vidscribe/vidscribe/billing"
	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/identity"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/media"
	"github.com/vidscribe/vidscribe/plugin"
	"github.com/vidscribe/vidscribe/remote"
	"github.com/vidscribe/vidscribe/settlement"
	"github.com/vidscribe/vidscribe/store"
	"github.com/vidscribe/vidscribe/user"
)

// Session is the main engine: one authenticated user's credit ledger,
// settlement reconciler, and subtitle job pipeline wired over a shared
// store.
type Session struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	identity identity.Provider
	billing  billing.Provider
	client   remote.Client
	prober   media.Prober
	cache    credit.Cache

	resultDir         string
	pollConfig        *job.PollConfig
	maxFileSize       int64
	reconcileInterval time.Duration

	mu      sync.Mutex
	started bool
	userID  id.UserID
	account *user.User
	ledger  *credit.Ledger
	settler *settlement.Settler
	jobs    *job.Orchestrator

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Session instance.
func New(s store.Store, opts ...Option) *Session {
	eng := &Session{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		prober:            &media.FFProbe{},
		reconcileInterval: 30 * time.Second,
		stopChan:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(eng)
	}

	return eng
}

// Option configures a Session instance.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
		s.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(s *Session) {
		_ = s.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithIdentity sets the identity provider that resolves the session user.
func WithIdentity(p identity.Provider) Option {
	return func(s *Session) { s.identity = p }
}

// WithBillingProvider sets the payment-platform snapshot source.
// Without one, settlement passes are skipped.
func WithBillingProvider(p billing.Provider) Option {
	return func(s *Session) { s.billing = p }
}

// WithRemoteClient sets the subtitle rendering service client.
// Without one, job submission is unavailable.
func WithRemoteClient(c remote.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithProber overrides the media prober used for pre-upload validation.
func WithProber(p media.Prober) Option {
	return func(s *Session) { s.prober = p }
}

// WithCache sets the local balance cache.
func WithCache(c credit.Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithResultDir sets the directory where subtitled videos are written.
func WithResultDir(dir string) Option {
	return func(s *Session) { s.resultDir = dir }
}

// WithPollConfig overrides the remote status polling cadence.
func WithPollConfig(cfg job.PollConfig) Option {
	return func(s *Session) { s.pollConfig = &cfg }
}

// WithMaxFileSize overrides the upload size ceiling in bytes.
func WithMaxFileSize(limit int64) Option {
	return func(s *Session) { s.maxFileSize = limit }
}

// WithReconcileInterval sets how often the background reconciler runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Session) { s.reconcileInterval = d }
}

// Start migrates the store, resolves the session user, builds the
// per-user services, and begins background workers.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.identity == nil {
		return errors.New("vidscribe: identity provider required")
	}

	if err := s.store.Migrate(ctx); err != nil {
		return fmt.Errorf("vidscribe: migrate: %w", err)
	}

	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return err
	}
	s.userID = userID

	if err := s.loadOrCreateUser(ctx); err != nil {
		return err
	}

	s.buildServices()

	// Hydrate the ledger. A remote outage here is not fatal: the cache
	// or the signup balance carries the session until reconciliation.
	if err := s.ledger.Sync(ctx); err != nil {
		s.logger.Warn("initial balance sync failed",
			"user_id", s.userID,
			"error", err,
		)
	}

	s.plugins.EmitInit(ctx, s)

	// Start reconciler worker
	s.wg.Add(1)
	go s.reconcileWorker()

	s.started = true
	s.logger.Info("session started",
		"user_id", s.userID,
		"balance", s.ledger.Balance(),
		"reconcile_interval", s.reconcileInterval,
	)

	return nil
}

// Stop shuts down the Session, flushing pending ledger state first.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return s.store.Close()
	}
	s.started = false
	jobs := s.jobs
	s.mu.Unlock()

	if jobs != nil {
		jobs.Cancel()
	}

	close(s.stopChan)
	s.wg.Wait()

	ctx := context.Background()
	if s.ledger.Dirty() {
		if err := s.ledger.Flush(ctx); err != nil {
			s.logger.Warn("final ledger flush failed", "error", err)
		}
	}

	s.plugins.EmitShutdown(ctx)

	return s.store.Close()
}

// loadOrCreateUser fetches the user record, provisioning a new account
// with the signup credit grant on first sight.
func (s *Session) loadOrCreateUser(ctx context.Context) error {
	u, err := s.store.GetUser(ctx, s.userID)
	if err == nil {
		s.account = u
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	u = user.New(s.userID, "")
	if err := s.store.CreateUser(ctx, u); err != nil {
		// Lost a provisioning race; re-read the winner's record.
		if errors.Is(err, ErrAlreadyExists) {
			u, err = s.store.GetUser(ctx, s.userID)
			if err != nil {
				return err
			}
			s.account = u
			return nil
		}
		return err
	}

	// CreateUser seeds the stored balance from u.Balance, so the signup
	// grant only needs its ledger entry.
	txn := &credit.Transaction{
		ID:           id.NewTransactionID(),
		UserID:       s.userID,
		Amount:       user.SignupCredits,
		Kind:         credit.KindBonus,
		Reference:    "signup",
		Timestamp:    time.Now().UTC(),
		BalanceAfter: u.Balance,
		Description:  "Signup bonus",
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		s.logger.Warn("signup bonus transaction not recorded",
			"user_id", s.userID,
			"error", err,
		)
	}

	s.account = u
	s.logger.Info("user provisioned",
		"user_id", s.userID,
		"signup_credits", user.SignupCredits,
	)
	return nil
}

// buildServices constructs the per-user ledger, settler, and job
// orchestrator with plugin bridges. Caller holds s.mu.
func (s *Session) buildServices() {
	ledgerOpts := []credit.Option{
		credit.WithLogger(s.logger),
		credit.WithMutationHook(func(txn *credit.Transaction, balance int64) {
			ctx := context.Background()
			s.plugins.EmitTransactionRecorded(ctx, txn)
			s.plugins.EmitBalanceChanged(ctx, balance)
		}),
	}
	if s.cache != nil {
		ledgerOpts = append(ledgerOpts, credit.WithCache(s.cache))
	}
	s.ledger = credit.NewLedger(s.userID, s.store, ledgerOpts...)

	if s.billing != nil {
		s.settler = settlement.NewSettler(s.userID, s.ledger, s.billing, s.store,
			settlement.WithLogger(s.logger),
			settlement.WithGrantHook(func(grant *settlement.Grant) {
				s.plugins.EmitCreditsGranted(context.Background(), grant)
			}),
		)
	}

	if s.client != nil {
		jobOpts := []job.Option{
			job.WithLogger(s.logger),
			job.WithStateHook(s.onJobState),
		}
		if s.resultDir != "" {
			jobOpts = append(jobOpts, job.WithResultDir(s.resultDir))
		}
		if s.pollConfig != nil {
			jobOpts = append(jobOpts, job.WithPollConfig(*s.pollConfig))
		}
		if s.maxFileSize > 0 {
			jobOpts = append(jobOpts, job.WithMaxFileSize(s.maxFileSize))
		}
		s.jobs = job.NewOrchestrator(s.userID, s.ledger, s.client, s.prober, s.store, jobOpts...)
	}
}

// onJobState bridges orchestrator transitions to plugins and keeps the
// user record's lifetime totals current.
func (s *Session) onJobState(j *job.Job) {
	ctx := context.Background()
	s.plugins.EmitJobStateChanged(ctx, j)

	if j.Status != job.StatusCompleted {
		return
	}

	s.mu.Lock()
	s.account.RecordJob(j.DurationSeconds, j.CreditsReserved)
	snapshot := *s.account
	s.mu.Unlock()

	if err := s.store.UpdateUser(ctx, &snapshot); err != nil {
		s.logger.Warn("user totals not persisted",
			"user_id", s.userID,
			"job_id", j.ID,
			"error", err,
		)
	}
}

// ──────────────────────────────────────────────────
// Credits
// ──────────────────────────────────────────────────

// Balance returns the in-memory credit balance.
func (s *Session) Balance() int64 {
	return s.ledger.Balance()
}

// HasSufficientCredits reports whether the balance covers a video of
// the given duration.
func (s *Session) HasSufficientCredits(durationSeconds float64) bool {
	return s.ledger.HasSufficientCredits(durationSeconds)
}

// Transactions returns the user's ledger history, newest first.
func (s *Session) Transactions(ctx context.Context, opts credit.ListOpts) ([]*credit.Transaction, error) {
	return s.ledger.Transactions(ctx, opts)
}

// Ledger returns the underlying credit ledger.
func (s *Session) Ledger() *credit.Ledger { return s.ledger }

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// SubmitJob starts a subtitle job for the local video at sourcePath.
// Only one job may be active at a time.
func (s *Session) SubmitJob(ctx context.Context, sourcePath string, opts job.Options) (*job.Job, error) {
	if s.jobs == nil {
		return nil, errors.New("vidscribe: no remote client configured")
	}
	return s.jobs.Submit(ctx, sourcePath, opts)
}

// WaitJob blocks until the active job reaches a terminal state.
func (s *Session) WaitJob(ctx context.Context) error {
	if s.jobs == nil {
		return errors.New("vidscribe: no remote client configured")
	}
	return s.jobs.Wait(ctx)
}

// CancelJob cancels the active job, if any.
func (s *Session) CancelJob() {
	if s.jobs != nil {
		s.jobs.Cancel()
	}
}

// ActiveJob returns a snapshot of the in-flight job, or nil.
func (s *Session) ActiveJob() *job.Job {
	if s.jobs == nil {
		return nil
	}
	return s.jobs.Active()
}

// GetJob returns a job by ID.
func (s *Session) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// Jobs returns the user's job history, newest first.
func (s *Session) Jobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.store.ListJobs(ctx, s.userID, opts)
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// SyncSettlement runs one settlement pass against the billing provider:
// due subscription grants plus unsettled credit pack purchases.
func (s *Session) SyncSettlement(ctx context.Context) (*settlement.Summary, error) {
	if s.settler == nil {
		return nil, errors.New("vidscribe: no billing provider configured")
	}
	summary, err := s.settler.Sync(ctx)
	if err != nil {
		return nil, err
	}
	s.plugins.EmitSettlementSynced(ctx, summary)
	return summary, nil
}

// User returns a snapshot of the session user's account record.
func (s *Session) User() user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.account
}

// Plugins returns the plugin registry.
func (s *Session) Plugins() *plugin.Registry { return s.plugins }

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// Reconcile runs one reconciliation pass: flush dirty ledger state,
// retry refunds owed by terminal jobs, and settle billing if a provider
// is configured. Safe to call concurrently with normal operation.
func (s *Session) Reconcile(ctx context.Context) error {
	if s.ledger == nil {
		return ErrNotStarted
	}

	var errs []error

	if s.ledger.Dirty() {
		if err := s.ledger.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.jobs != nil {
		if err := s.jobs.SettleRefunds(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.settler != nil {
		if _, err := s.SyncSettlement(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// reconcileWorker periodically reconciles local state with the store
// and the billing provider.
func (s *Session) reconcileWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	ctx := context.Background()

	for {
		select {
		case <-s.stopChan:
			return

		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Warn("reconcile pass failed", "error", err)
			}
		}
	}
}
