package job

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
	"github.com/vidscribe/vidscribe/media"
	"github.com/vidscribe/vidscribe/remote"
)

// fakeClient scripts the rendering service: each Status call consumes
// the next queued error or phase, with the final phase repeating.
type fakeClient struct {
	mu            sync.Mutex
	phases        []remote.Phase
	statusErrs    []error
	uploadErr     error
	resultURL     string
	transcript    string
	subtitleCount int
	uploads       int
	submits       int
	cancelled     bool
	statusCall    int
}

func (c *fakeClient) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads++
	if c.uploadErr != nil {
		return "", c.uploadErr
	}
	io.Copy(io.Discard, body)
	return "https://cdn.example.com/" + filename, nil
}

func (c *fakeClient) Submit(ctx context.Context, req remote.SubmitRequest) (remote.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	return remote.Submission{RequestID: "req-1"}, nil
}

func (c *fakeClient) Status(ctx context.Context, requestID string) (remote.Status, error) {
	if err := ctx.Err(); err != nil {
		return remote.Status{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statusErrs) > 0 {
		err := c.statusErrs[0]
		c.statusErrs = c.statusErrs[1:]
		return remote.Status{}, err
	}
	i := c.statusCall
	if i >= len(c.phases) {
		i = len(c.phases) - 1
	}
	c.statusCall++
	return remote.Status{Phase: c.phases[i]}, nil
}

func (c *fakeClient) Result(ctx context.Context, requestID string) (remote.Result, error) {
	return remote.Result{VideoURL: c.resultURL, Transcript: c.transcript, SubtitleCount: c.subtitleCount}, nil
}

func (c *fakeClient) Cancel(ctx context.Context, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	return nil
}

func (c *fakeClient) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "subtitled video")
	return int64(n), err
}

// memJobStore is an in-memory Store.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[id.JobID]*Job
}

func newMemJobStore() *memJobStore { return &memJobStore{jobs: make(map[id.JobID]*Job)} }

func (s *memJobStore) SaveJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *job
	s.jobs[job.ID] = &snapshot
	return nil
}

func (s *memJobStore) GetJob(ctx context.Context, jobID id.JobID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	return j, nil
}

func (s *memJobStore) ListJobs(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *memJobStore) ListRefundPending(ctx context.Context, userID id.UserID) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.NeedsRefund() {
			out = append(out, j)
		}
	}
	return out, nil
}

// memCreditStore backs a real Ledger.
type memCreditStore struct {
	mu       sync.Mutex
	balances map[id.UserID]int64
	txns     []*credit.Transaction
}

func newMemCreditStore() *memCreditStore {
	return &memCreditStore{balances: make(map[id.UserID]int64)}
}

func (s *memCreditStore) Balance(ctx context.Context, userID id.UserID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *memCreditStore) IncrementBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += delta
	return s.balances[userID], nil
}

func (s *memCreditStore) SetBalance(ctx context.Context, userID id.UserID, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}

func (s *memCreditStore) AppendTransaction(ctx context.Context, txn *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append(s.txns, txn)
	return nil
}

func (s *memCreditStore) ListTransactions(ctx context.Context, userID id.UserID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*credit.Transaction, 0, len(s.txns))
	for i := len(s.txns) - 1; i >= 0; i-- {
		out = append(out, s.txns[i])
	}
	return out, nil
}

type fixture struct {
	orch   *Orchestrator
	ledger *credit.Ledger
	client *fakeClient
	store  *memJobStore
	source string
}

func testPollConfig() PollConfig {
	return PollConfig{Base: time.Millisecond, Factor: 1.5, Cap: 2 * time.Millisecond, Deadline: 2 * time.Second}
}

func newFixture(t *testing.T, balance int64, info *media.Info, client *fakeClient) *fixture {
	t.Helper()
	userID := id.NewUserID()
	cstore := newMemCreditStore()
	cstore.balances[userID] = balance
	ledger := credit.NewLedger(userID, cstore)
	if err := ledger.Sync(context.Background()); err != nil {
		t.Fatalf("ledger sync: %v", err)
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	store := newMemJobStore()
	orch := NewOrchestrator(userID, ledger, client, &media.StaticProber{Info: info}, store,
		WithResultDir(dir),
		WithPollConfig(testPollConfig()),
	)
	return &fixture{orch: orch, ledger: ledger, client: client, store: store, source: source}
}

func runToCompletion(t *testing.T, f *fixture) *Job {
	t.Helper()
	job, err := f.orch.Submit(context.Background(), f.source, DefaultOptions())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.orch.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return job
}

func TestHappyPath(t *testing.T) {
	client := &fakeClient{
		phases:        []remote.Phase{remote.PhaseQueued, remote.PhaseInProgress, remote.PhaseCompleted},
		resultURL:     "https://cdn.example.com/out.mp4",
		transcript:    "hello world",
		subtitleCount: 2,
	}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 125, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)

	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", job.Status, job.FailureReason)
	}
	if job.CreditsReserved != 3 {
		t.Errorf("reserved = %d, want 3 for a 125s video", job.CreditsReserved)
	}
	if got := f.ledger.Balance(); got != 2 {
		t.Errorf("balance = %d, want 2", got)
	}
	if job.ResultPath == "" {
		t.Fatal("no result path")
	}
	if job.Transcription != "hello world" || job.SubtitleCount != 2 {
		t.Errorf("transcription = %q / %d subtitles", job.Transcription, job.SubtitleCount)
	}
	if job.StartedAt.IsZero() || job.CompletedAt.IsZero() {
		t.Error("started/completed timestamps not set")
	}
	if job.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", job.RetryCount)
	}
	data, err := os.ReadFile(job.ResultPath)
	if err != nil || string(data) != "subtitled video" {
		t.Errorf("result file = %q, %v", data, err)
	}
	if f.orch.Active() != nil {
		t.Error("job still active after completion")
	}
}

func TestRemoteFailureRefunds(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseInProgress, remote.PhaseFailed}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 90, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)

	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", job.Status)
	}
	if job.CreditsReserved != 2 || job.CreditsRefunded != 2 {
		t.Errorf("reserved/refunded = %d/%d, want 2/2", job.CreditsReserved, job.CreditsRefunded)
	}
	if got := f.ledger.Balance(); got != 5 {
		t.Errorf("balance = %d, want restored 5", got)
	}
	if job.FailureReason == "" {
		t.Error("failure reason empty")
	}

	txns, _ := f.ledger.Transactions(context.Background(), credit.ListOpts{})
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want debit + refund", len(txns))
	}
	if txns[0].Kind != credit.KindRefund || txns[1].Kind != credit.KindDeduction {
		t.Errorf("kinds = %s, %s", txns[0].Kind, txns[1].Kind)
	}
}

func TestInsufficientCreditsFailsBeforeUpload(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 600, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)

	if job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.CreditsReserved != 0 {
		t.Errorf("reserved = %d, want 0", job.CreditsReserved)
	}
	if got := f.ledger.Balance(); got != 5 {
		t.Errorf("balance = %d, want untouched 5", got)
	}
	if client.uploads != 0 {
		t.Error("uploaded despite failed reservation")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		info     *media.Info
		probeErr error
		wantErr  error
	}{
		{"no audio", &media.Info{DurationSeconds: 60, HasAudio: false, SizeBytes: 1 << 20}, nil, ErrNoAudioTrack},
		{"missing file", nil, fs.ErrNotExist, ErrVideoNotFound},
		{"unreadable", nil, media.ErrUnreadable, ErrInvalidVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}}
			f := newFixture(t, 5, tt.info, client)
			f.orch.prober = &media.StaticProber{Info: tt.info, Err: tt.probeErr}

			job := runToCompletion(t, f)
			if job.Status != StatusFailed {
				t.Fatalf("status = %s", job.Status)
			}
			stored, err := f.store.GetJob(context.Background(), job.ID)
			if err != nil {
				t.Fatalf("GetJob: %v", err)
			}
			if !strings.HasPrefix(stored.FailureReason, tt.wantErr.Error()) {
				t.Errorf("reason = %q, want %q", stored.FailureReason, tt.wantErr.Error())
			}
			if got := f.ledger.Balance(); got != 5 {
				t.Errorf("balance = %d, want 5", got)
			}
		})
	}
}

func TestUnusableDurationRejected(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
	}{
		{"zero", 0},
		{"negative", -3},
		{"nan", math.NaN()},
		{"infinite", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}}
			f := newFixture(t, 5, &media.Info{DurationSeconds: tt.duration, HasAudio: true, SizeBytes: 1 << 20}, client)

			job := runToCompletion(t, f)
			if job.Status != StatusFailed {
				t.Fatalf("status = %s, want failed", job.Status)
			}
			if !strings.HasPrefix(job.FailureReason, ErrInvalidVideo.Error()) {
				t.Errorf("reason = %q, want invalid video", job.FailureReason)
			}
			if got := f.ledger.Balance(); got != 5 {
				t.Errorf("balance = %d, want untouched 5", got)
			}
			if client.uploads != 0 {
				t.Error("unusable video was uploaded")
			}
		})
	}
}

func TestFileTooLarge(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: MaxFileSize + 1}, client)

	job := runToCompletion(t, f)
	if job.Status != StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.FailureReason == "" {
		t.Error("failure reason empty")
	}
	if client.uploads != 0 {
		t.Error("oversized file was uploaded")
	}
}

func TestSingleJobInFlight(t *testing.T) {
	// PhaseQueued repeats forever, keeping the first job in flight.
	client := &fakeClient{phases: []remote.Phase{remote.PhaseQueued}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	if _, err := f.orch.Submit(context.Background(), f.source, DefaultOptions()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.orch.Submit(context.Background(), f.source, DefaultOptions()); !errors.Is(err, ErrJobInFlight) {
		t.Fatalf("second Submit error = %v, want ErrJobInFlight", err)
	}

	f.orch.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.orch.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCancelRefundsAndAbandonsRemote(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseInProgress}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	job, err := f.orch.Submit(context.Background(), f.source, DefaultOptions())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Let the pipeline reach the poll loop, then cancel.
	deadline := time.Now().Add(5 * time.Second)
	for client.statusCall == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	f.orch.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.orch.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if job.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
	if job.CreditsRefunded != job.CreditsReserved || job.CreditsReserved == 0 {
		t.Errorf("reserved/refunded = %d/%d", job.CreditsReserved, job.CreditsRefunded)
	}
	if got := f.ledger.Balance(); got != 5 {
		t.Errorf("balance = %d, want restored 5", got)
	}
	if !client.cancelled {
		t.Error("remote request not abandoned")
	}
}

func TestPollDeadlineTimesOut(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseInProgress}}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)
	cfg := testPollConfig()
	cfg.Deadline = 10 * time.Millisecond
	f.orch.poll = cfg
	f.orch.retryDelay = time.Millisecond

	job := runToCompletion(t, f)

	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded after timeout", job.Status)
	}
	if job.RetryCount != job.MaxRetries {
		t.Errorf("retry count = %d, want %d; timeouts are transient", job.RetryCount, job.MaxRetries)
	}
	if job.FailureReason != ErrTimeout.Error() {
		t.Errorf("reason = %q", job.FailureReason)
	}
	if !client.cancelled {
		t.Error("timed-out request not abandoned")
	}
	if got := f.ledger.Balance(); got != 5 {
		t.Errorf("balance = %d, want restored 5", got)
	}
}

func TestTransientFailureRetriesWholeJob(t *testing.T) {
	client := &fakeClient{uploadErr: &remote.Error{Kind: remote.KindServer, StatusCode: 503, Message: "storage down"}}
	f := newFixture(t, 10, &media.Info{DurationSeconds: 90, HasAudio: true, SizeBytes: 1 << 20}, client)
	f.orch.retryDelay = time.Millisecond

	job := runToCompletion(t, f)

	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", job.Status)
	}
	if job.RetryCount != job.MaxRetries || job.MaxRetries != maxRetries {
		t.Fatalf("retries = %d of %d, want the full %d re-entries", job.RetryCount, job.MaxRetries, maxRetries)
	}
	if client.uploads != maxRetries+1 {
		t.Errorf("uploads = %d, want one per attempt", client.uploads)
	}
	if got := f.ledger.Balance(); got != 10 {
		t.Errorf("balance = %d, want restored 10", got)
	}

	// Every attempt reserved credits and every reservation was refunded.
	txns, _ := f.ledger.Transactions(context.Background(), credit.ListOpts{})
	var debits, refunds int
	for _, txn := range txns {
		switch txn.Kind {
		case credit.KindDeduction:
			debits++
		case credit.KindRefund:
			refunds++
		}
	}
	if debits != maxRetries+1 || refunds != maxRetries+1 {
		t.Errorf("debits/refunds = %d/%d, want %d of each", debits, refunds, maxRetries+1)
	}
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	client := &fakeClient{uploadErr: &remote.Error{Kind: remote.KindValidation, StatusCode: 422, Message: "bad video"}}
	f := newFixture(t, 10, &media.Info{DurationSeconds: 90, HasAudio: true, SizeBytes: 1 << 20}, client)
	f.orch.retryDelay = time.Millisecond

	job := runToCompletion(t, f)

	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", job.Status)
	}
	if job.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0 for a permanent error", job.RetryCount)
	}
	if client.uploads != 1 {
		t.Errorf("uploads = %d, want 1", client.uploads)
	}
}

func TestTransientStatusErrorsAreRetried(t *testing.T) {
	transient := &remote.Error{Kind: remote.KindServer, StatusCode: 503, Message: "blip"}
	client := &fakeClient{
		statusErrs: []error{transient, transient},
		phases:     []remote.Phase{remote.PhaseCompleted},
		resultURL:  "https://cdn.example.com/out.mp4",
	}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed after transient retries", job.Status, job.FailureReason)
	}
}

func TestPermanentStatusErrorFails(t *testing.T) {
	client := &fakeClient{
		statusErrs: []error{&remote.Error{Kind: remote.KindAuth, StatusCode: 401, Message: "bad key"}},
		phases:     []remote.Phase{remote.PhaseCompleted},
	}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)
	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", job.Status)
	}
	if got := f.ledger.Balance(); got != 5 {
		t.Errorf("balance = %d, want restored 5", got)
	}
}

func TestEmptyResultFails(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}, resultURL: ""}
	f := newFixture(t, 5, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	job := runToCompletion(t, f)
	if job.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", job.Status)
	}
	if job.FailureReason != ErrNoResultVideo.Error() {
		t.Errorf("reason = %q", job.FailureReason)
	}
}

func TestSettleRefundsRetriesDeferredRefunds(t *testing.T) {
	client := &fakeClient{phases: []remote.Phase{remote.PhaseCompleted}}
	f := newFixture(t, 0, &media.Info{DurationSeconds: 60, HasAudio: true, SizeBytes: 1 << 20}, client)

	// A failed job from an earlier run that never got its refund.
	stale := &Job{
		ID:              id.NewJobID(),
		UserID:          f.orch.userID,
		Status:          StatusFailed,
		CreditsReserved: 4,
	}
	if err := f.store.SaveJob(context.Background(), stale); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	if err := f.orch.SettleRefunds(context.Background()); err != nil {
		t.Fatalf("SettleRefunds: %v", err)
	}
	if got := f.ledger.Balance(); got != 4 {
		t.Errorf("balance = %d, want 4", got)
	}
	stored, err := f.store.GetJob(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != StatusRefunded || stored.CreditsRefunded != 4 {
		t.Errorf("stored = %s refunded %d", stored.Status, stored.CreditsRefunded)
	}

	// A second pass finds nothing owing.
	if err := f.orch.SettleRefunds(context.Background()); err != nil {
		t.Fatalf("second SettleRefunds: %v", err)
	}
	if got := f.ledger.Balance(); got != 4 {
		t.Errorf("balance drifted to %d", got)
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded} {
		if !s.IsTerminal() || s.IsActive() {
			t.Errorf("%s: terminal/active predicates wrong", s)
		}
	}
	for _, s := range []Status{StatusValidating, StatusUploading, StatusQueued, StatusProcessing, StatusDownloading} {
		if s.IsTerminal() || !s.IsActive() {
			t.Errorf("%s: terminal/active predicates wrong", s)
		}
	}
	if StatusIdle.IsActive() || StatusIdle.IsTerminal() {
		t.Error("idle is neither active nor terminal")
	}
}
