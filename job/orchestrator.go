package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/media"
	"github.com/vidscribe/vidscribe/remote"
	"github.com/vidscribe/vidscribe/types"
)

// MaxFileSize is the upload limit for source videos.
const MaxFileSize int64 = 100 << 20

// maxRetries is the default bound on whole-job re-entries after a
// transient failure: each retry refunds the attempt's reservation and
// re-runs the pipeline from validation with a fresh one.
const maxRetries = 3

// maxPollFailures bounds consecutive status-poll errors tolerated
// inside one attempt before the attempt gives up.
const maxPollFailures = 3

// PollConfig shapes the status poll loop: the interval starts at Base,
// grows by Factor after each poll, and is capped at Cap; Deadline bounds
// the whole remote phase.
type PollConfig struct {
	Base     time.Duration
	Factor   float64
	Cap      time.Duration
	Deadline time.Duration
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		Base:     3 * time.Second,
		Factor:   1.5,
		Cap:      10 * time.Second,
		Deadline: 600 * time.Second,
	}
}

// StateHook observes every persisted job state change.
type StateHook func(job *Job)

// Orchestrator drives one user's subtitle jobs. At most one job is in
// flight at a time; Submit while a job is active fails with
// ErrJobInFlight.
type Orchestrator struct {
	userID     id.UserID
	ledger     *credit.Ledger
	client     remote.Client
	prober     media.Prober
	store      Store
	logger     *slog.Logger
	hook       StateHook
	resultDir  string
	poll       PollConfig
	maxSize    int64
	retries    int
	retryDelay time.Duration

	mu     sync.Mutex
	active *Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStateHook registers an observer for job state changes.
func WithStateHook(hook StateHook) Option {
	return func(o *Orchestrator) { o.hook = hook }
}

// WithResultDir sets the directory results are downloaded into.
func WithResultDir(dir string) Option {
	return func(o *Orchestrator) { o.resultDir = dir }
}

// WithPollConfig overrides the status poll timing.
func WithPollConfig(cfg PollConfig) Option {
	return func(o *Orchestrator) { o.poll = cfg }
}

// WithMaxFileSize overrides the source file size limit.
func WithMaxFileSize(limit int64) Option {
	return func(o *Orchestrator) { o.maxSize = limit }
}

// WithMaxRetries overrides how many times a job re-enters the pipeline
// after a transient failure.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.retries = n }
}

// WithRetryDelay overrides the base delay between job attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// NewOrchestrator creates an orchestrator for one user.
func NewOrchestrator(userID id.UserID, ledger *credit.Ledger, client remote.Client, prober media.Prober, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		userID:     userID,
		ledger:     ledger,
		client:     client,
		prober:     prober,
		store:      store,
		logger:     slog.Default(),
		resultDir:  os.TempDir(),
		poll:       defaultPollConfig(),
		maxSize:    MaxFileSize,
		retries:    maxRetries,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Active returns the in-flight job, or nil.
func (o *Orchestrator) Active() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Submit starts a job for the given source file in the background and
// returns the job record immediately. Use Wait to block for the
// outcome and Cancel to abandon it.
func (o *Orchestrator) Submit(ctx context.Context, sourcePath string, opts Options) (*Job, error) {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrJobInFlight
	}

	job := &Job{
		Entity:     types.NewEntity(),
		ID:         id.NewJobID(),
		UserID:     o.userID,
		SourcePath: sourcePath,
		Status:     StatusIdle,
		Options:    opts,
		MaxRetries: o.retries,
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.active = job
	o.cancel = cancel
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			o.mu.Lock()
			o.active = nil
			o.cancel = nil
			o.mu.Unlock()
		}()
		if err := o.execute(runCtx, job); err != nil {
			o.logger.Warn("job ended with error", "job_id", job.ID, "status", job.Status, "error", err)
		}
	}()

	return job, nil
}

// Wait blocks until the in-flight job finishes or ctx is done. It
// returns immediately when no job is active.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the in-flight job. The pipeline notices the
// cancellation at its next blocking point, tells the service to
// abandon the request, and refunds reserved credits.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// execute drives run attempts under the whole-job retry policy: a
// transient failure refunds the attempt's reservation, bumps the retry
// count, and re-enters the pipeline from validation with a fresh
// reservation, until the bound is reached.
func (o *Orchestrator) execute(ctx context.Context, job *Job) error {
	for {
		err := o.run(ctx, job)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return o.fail(ctx, job, ErrCancelled)
		}
		if !isTransient(err) || job.RetryCount >= job.MaxRetries {
			return o.fail(ctx, job, err)
		}
		if rerr := o.refundAttempt(ctx, job); rerr != nil {
			// Couldn't return the reservation; stop here and let fail
			// (or the reconciler) settle it.
			return o.fail(ctx, job, err)
		}
		job.RetryCount++
		job.RequestID = ""
		job.Touch()
		o.save(ctx, job)
		o.logger.Warn("transient failure, retrying job", "job_id", job.ID,
			"retry", job.RetryCount, "max_retries", job.MaxRetries, "error", err)
		if serr := sleep(ctx, time.Duration(job.RetryCount)*o.retryDelay); serr != nil {
			return o.fail(ctx, job, ErrCancelled)
		}
	}
}

// isTransient reports whether a failed attempt may re-enter the
// pipeline: retryable remote errors and poll deadline timeouts.
func isTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || remote.IsRetryable(err)
}

// refundAttempt returns the current attempt's reservation before a
// retry, so every reservation pairs with exactly one refund or a
// delivered result.
func (o *Orchestrator) refundAttempt(ctx context.Context, job *Job) error {
	if job.CreditsReserved == 0 {
		return nil
	}
	ref := "job:" + job.ID.String()
	if _, err := o.ledger.Refund(context.WithoutCancel(ctx), job.CreditsReserved, ref,
		"refund for retried attempt"); err != nil {
		return err
	}
	job.CreditsReserved = 0
	job.CreditsRefunded = 0
	return nil
}

// run executes one attempt of the full pipeline synchronously.
func (o *Orchestrator) run(ctx context.Context, job *Job) error {
	o.setStatus(ctx, job, StatusValidating)

	info, err := o.validate(ctx, job)
	if err != nil {
		return err
	}
	job.DurationSeconds = info.DurationSeconds
	job.SizeBytes = info.SizeBytes

	required := credit.RequiredCredits(info.DurationSeconds)
	ref := "job:" + job.ID.String()
	if _, err := o.ledger.Debit(ctx, required, credit.KindDeduction, ref,
		fmt.Sprintf("subtitle job, %.0fs video", info.DurationSeconds)); err != nil {
		return err
	}
	job.CreditsReserved = required
	o.save(ctx, job)

	o.setStatus(ctx, job, StatusUploading)
	fileURL, err := o.upload(ctx, job)
	if err != nil {
		return err
	}

	sub, err := o.client.Submit(ctx, remote.SubmitRequest{
		VideoURL: fileURL,
		Options: remote.SubtitleOptions{
			FontName:       job.Options.FontName,
			FontSize:       job.Options.FontSize,
			TextColor:      job.Options.TextColor,
			HighlightColor: job.Options.HighlightColor,
			Position:       job.Options.Position,
			Language:       job.Options.Language,
		},
	})
	if err != nil {
		return err
	}
	job.RequestID = sub.RequestID
	job.StartedAt = time.Now().UTC()
	o.setStatus(ctx, job, StatusQueued)

	if err := o.pollUntilDone(ctx, job); err != nil {
		return err
	}

	o.setStatus(ctx, job, StatusDownloading)
	if err := o.download(ctx, job); err != nil {
		return err
	}

	job.CompletedAt = time.Now().UTC()
	o.setStatus(ctx, job, StatusCompleted)
	o.logger.Info("job completed", "job_id", job.ID, "result", job.ResultPath,
		"credits", job.CreditsReserved)
	return nil
}

// validate probes the source file and enforces intake rules. Nothing is
// reserved yet, so validation failures never owe a refund.
func (o *Orchestrator) validate(ctx context.Context, job *Job) (*media.Info, error) {
	info, err := o.prober.Probe(ctx, job.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	if info.DurationSeconds <= 0 || math.IsNaN(info.DurationSeconds) || math.IsInf(info.DurationSeconds, 0) {
		return nil, fmt.Errorf("%w: unusable duration %v", ErrInvalidVideo, info.DurationSeconds)
	}
	if info.SizeBytes > o.maxSize {
		return nil, &FileTooLargeError{SizeBytes: info.SizeBytes, MaxBytes: o.maxSize}
	}
	if !info.HasAudio {
		return nil, ErrNoAudioTrack
	}
	return info, nil
}

func (o *Orchestrator) upload(ctx context.Context, job *Job) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(job.SourcePath))
	if contentType == "" {
		contentType = "video/mp4"
	}

	f, err := os.Open(job.SourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVideoNotFound, err)
	}
	defer f.Close()

	return o.client.Upload(ctx, filepath.Base(job.SourcePath), contentType, job.SizeBytes, f)
}

// pollUntilDone watches the request until it reaches a terminal phase.
// The interval backs off geometrically; the whole wait is bounded by
// the poll deadline, after which the request is abandoned.
func (o *Orchestrator) pollUntilDone(ctx context.Context, job *Job) error {
	deadline := time.Now().Add(o.poll.Deadline)
	interval := o.poll.Base
	failures := 0

	for {
		if err := sleep(ctx, interval); err != nil {
			o.abandonRemote(job)
			return ErrCancelled
		}
		if time.Now().After(deadline) {
			o.abandonRemote(job)
			return ErrTimeout
		}

		st, err := o.client.Status(ctx, job.RequestID)
		if err != nil {
			if ctx.Err() != nil {
				o.abandonRemote(job)
				return ErrCancelled
			}
			failures++
			if !remote.IsRetryable(err) || failures >= maxPollFailures {
				return err
			}
			o.logger.Warn("status poll failed, retrying", "job_id", job.ID,
				"attempt", failures, "error", err)
			continue
		}
		failures = 0

		switch st.Phase {
		case remote.PhaseQueued:
			if job.Status != StatusQueued {
				o.setStatus(ctx, job, StatusQueued)
			}
		case remote.PhaseInProgress:
			if job.Status != StatusProcessing {
				o.setStatus(ctx, job, StatusProcessing)
			}
		case remote.PhaseCompleted:
			return nil
		case remote.PhaseFailed:
			if st.Detail != "" {
				return fmt.Errorf("%w: %s", ErrProcessingFailed, st.Detail)
			}
			return ErrProcessingFailed
		case remote.PhaseCancelled:
			return ErrCancelled
		}

		interval = time.Duration(float64(interval) * o.poll.Factor)
		if interval > o.poll.Cap {
			interval = o.poll.Cap
		}
	}
}

func (o *Orchestrator) download(ctx context.Context, job *Job) error {
	result, err := o.client.Result(ctx, job.RequestID)
	if err != nil {
		return err
	}
	if result.VideoURL == "" {
		return ErrNoResultVideo
	}
	job.Transcription = result.Transcript
	job.SubtitleCount = result.SubtitleCount

	path := filepath.Join(o.resultDir, "subtitle_"+uuid.NewString()+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vidscribe: create result file: %w", err)
	}
	defer f.Close()

	if _, err := o.client.Download(ctx, result.VideoURL, f); err != nil {
		os.Remove(path)
		return err
	}
	job.ResultPath = path
	return nil
}

// fail settles a job that cannot complete: classify the terminal
// status, refund any reserved credits, and persist. The refund runs on
// a detached context so a cancelled pipeline still returns credits.
func (o *Orchestrator) fail(ctx context.Context, job *Job, cause error) error {
	status := StatusFailed
	if errors.Is(cause, ErrCancelled) || errors.Is(cause, context.Canceled) {
		status = StatusCancelled
		cause = ErrCancelled
	}
	job.Status = status
	job.FailureReason = cause.Error()
	job.CompletedAt = time.Now().UTC()
	job.Touch()

	if job.NeedsRefund() {
		refundCtx := context.WithoutCancel(ctx)
		ref := "job:" + job.ID.String()
		if _, err := o.ledger.Refund(refundCtx, job.CreditsReserved, ref, "refund for unfinished job"); err != nil {
			// The reconciler retries refund-pending jobs.
			o.logger.Warn("refund deferred", "job_id", job.ID, "credits", job.CreditsReserved, "error", err)
		} else {
			job.CreditsRefunded = job.CreditsReserved
			if job.Status == StatusFailed {
				job.Status = StatusRefunded
			}
		}
	}

	o.save(ctx, job)
	if o.hook != nil {
		o.hook(job)
	}
	o.logger.Warn("job failed", "job_id", job.ID, "status", job.Status, "reason", job.FailureReason)
	return cause
}

// SettleRefunds refunds any terminal jobs still owing credits. The
// session reconciler calls this periodically.
func (o *Orchestrator) SettleRefunds(ctx context.Context) error {
	pending, err := o.store.ListRefundPending(ctx, o.userID)
	if err != nil {
		return fmt.Errorf("vidscribe: list refund-pending jobs: %w", err)
	}
	for _, job := range pending {
		ref := "job:" + job.ID.String()
		if _, err := o.ledger.Refund(ctx, job.CreditsReserved, ref, "refund for unfinished job"); err != nil {
			return fmt.Errorf("vidscribe: refund job %s: %w", job.ID, err)
		}
		job.CreditsRefunded = job.CreditsReserved
		if job.Status == StatusFailed {
			job.Status = StatusRefunded
		}
		job.Touch()
		o.save(ctx, job)
		if o.hook != nil {
			o.hook(job)
		}
		o.logger.Info("deferred refund settled", "job_id", job.ID, "credits", job.CreditsRefunded)
	}
	return nil
}

// abandonRemote tells the service to drop the request, best effort.
func (o *Orchestrator) abandonRemote(job *Job) {
	if job.RequestID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.client.Cancel(ctx, job.RequestID); err != nil {
		o.logger.Warn("remote cancel failed", "job_id", job.ID, "request_id", job.RequestID, "error", err)
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, job *Job, status Status) {
	job.Status = status
	job.Touch()
	o.save(ctx, job)
	if o.hook != nil {
		o.hook(job)
	}
	o.logger.Debug("job state", "job_id", job.ID, "status", status)
}

// save persists the job, tolerating store failures: the pipeline keeps
// the authoritative in-memory record.
func (o *Orchestrator) save(ctx context.Context, job *Job) {
	if err := o.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		o.logger.Warn("job save failed", "job_id", job.ID, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
