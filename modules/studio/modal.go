package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/database"
	"portfolio-studio-server/modules/common/gemini"
	"portfolio-studio-server/modules/common/model"
	"portfolio-studio-server/modules/common/registry"
)

// Phase - what the modal is showing
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

var (
	ErrClosed            = errors.New("modal is closed")
	ErrBusy              = errors.New("a submission is already in progress")
	ErrInvalidTransition = errors.New("action not allowed in the current state")
)

// Jobs - job submission and observation (jobclient.Client in production)
type Jobs interface {
	SubmitImageEdit(ctx context.Context, payload model.EncodedPayload, instruction string) *model.Job
	SubmitVideoGeneration(ctx context.Context, payload model.EncodedPayload, cfg gemini.VideoConfig) *model.Job
	Subscribe(jobID string) (<-chan model.JobSnapshot, func())
	Cancel(jobID string) bool
}

// Encoder - media asset to transport payload
type Encoder interface {
	Encode(ctx context.Context, asset model.Asset) (model.EncodedPayload, error)
}

// Publisher - optional upload of accepted assets
type Publisher interface {
	Publish(ctx context.Context, projectID string, asset model.Asset) (string, error)
}

// JobStore - optional audit trail of job lifecycles
type JobStore interface {
	InsertJob(ctx context.Context, record database.JobRecord) error
	UpdateJobStatus(ctx context.Context, record database.JobRecord) error
}

// VideoDefaults - fixed generation settings applied to every video job
type VideoDefaults struct {
	Prompt     string
	Resolution string
	Count      int
}

// Deps - collaborators shared by every modal
type Deps struct {
	Jobs      Jobs
	Encoder   Encoder
	Registry  registry.Registry
	Publisher Publisher
	Store     JobStore
	Video     VideoDefaults
	Now       func() time.Time
	Log       zerolog.Logger

	metrics *Metrics
}

// Input - locally held selection for the next submission
type Input struct {
	Asset       model.Asset
	Prompt      string
	AspectRatio string
}

// Modal - per-modal view model over exactly one job at a time
type Modal struct {
	id        string
	projectID string
	kind      model.JobKind
	deps      *Deps
	log       zerolog.Logger
	createdAt time.Time

	mu           sync.Mutex
	phase        Phase
	input        Input
	hasInput     bool
	jobID        string
	generation   int
	progress     int
	err          error
	result       *model.Asset
	closed       bool
	lastActivity time.Time
	watchers     map[int]chan View
	nextWatcher  int
}

func newModal(id, projectID string, kind model.JobKind, deps *Deps) *Modal {
	now := deps.Now()
	return &Modal{
		id:           id,
		projectID:    projectID,
		kind:         kind,
		deps:         deps,
		log:          deps.Log.With().Str("modal_id", id).Str("project_id", projectID).Logger(),
		createdAt:    now,
		phase:        PhaseIdle,
		lastActivity: now,
		watchers:     make(map[int]chan View),
	}
}

func (m *Modal) ID() string { return m.id }

func (m *Modal) ProjectID() string { return m.projectID }

func (m *Modal) Kind() model.JobKind { return m.kind }

// SetInput - idle/ready → ready
func (m *Modal) SetInput(in Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	switch m.phase {
	case PhaseSubmitting, PhasePolling:
		return ErrBusy
	case PhaseIdle, PhaseReady:
	default:
		return fmt.Errorf("%w: dismiss the current %s result first", ErrInvalidTransition, m.phase)
	}
	if in.Asset.IsZero() {
		return &model.InputError{}
	}

	m.input = in
	m.hasInput = true
	m.phase = PhaseReady
	m.touch()
	m.notify()
	return nil
}

// Submit - ready → submitting → (polling) → succeeded | failed
// Image edits return once terminal; video jobs return while polling.
func (m *Modal) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.phase {
	case PhaseSubmitting, PhasePolling:
		m.mu.Unlock()
		return ErrBusy
	case PhaseReady:
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: select an image first", ErrInvalidTransition)
	}

	m.generation++
	gen := m.generation
	in := m.input
	m.phase = PhaseSubmitting
	m.progress = 0
	m.err = nil
	m.result = nil
	m.jobID = ""
	m.touch()
	m.notify()
	m.mu.Unlock()

	payload, err := m.deps.Encoder.Encode(ctx, in.Asset)
	if err != nil {
		m.log.Warn().Err(err).Msg("⚠️  [Studio] Input could not be encoded")
		m.settle(gen, err)
		return nil
	}

	var job *model.Job
	if m.kind == model.KindVideoGenerate {
		job = m.deps.Jobs.SubmitVideoGeneration(ctx, payload, gemini.VideoConfig{
			Prompt:         m.deps.Video.Prompt,
			AspectRatio:    in.AspectRatio,
			Resolution:     m.deps.Video.Resolution,
			NumberOfVideos: m.deps.Video.Count,
		})
	} else {
		job = m.deps.Jobs.SubmitImageEdit(ctx, payload, in.Prompt)
	}
	m.deps.metrics.jobSubmitted()

	if !m.attach(gen, job.ID()) {
		m.deps.Jobs.Cancel(job.ID())
		return nil
	}
	m.record(job.Snapshot(), true)

	updates, stop := m.deps.Jobs.Subscribe(job.ID())
	if first, ok := <-updates; ok {
		m.apply(gen, first)
	}
	if m.kind != model.KindVideoGenerate {
		defer stop()
		for snap := range updates {
			m.apply(gen, snap)
		}
		return nil
	}

	go func() {
		defer stop()
		for snap := range updates {
			m.apply(gen, snap)
		}
	}()
	return nil
}

// attach - bind the job to the submission unless it was superseded meanwhile
func (m *Modal) attach(gen int, jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.generation {
		return false
	}
	m.jobID = jobID
	return true
}

// settle - submission failed before a job existed
func (m *Modal) settle(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.generation {
		return
	}
	m.phase = PhaseFailed
	m.err = err
	m.touch()
	m.notify()
}

// apply - fold a job snapshot into the view; stale or post-close updates are dropped
func (m *Modal) apply(gen int, snap model.JobSnapshot) {
	m.mu.Lock()
	if m.closed || gen != m.generation || snap.ID != m.jobID {
		m.mu.Unlock()
		return
	}

	m.progress = snap.Progress
	switch snap.Status {
	case model.StatusPending:
		m.phase = PhaseSubmitting
	case model.StatusRunning:
		if m.kind == model.KindVideoGenerate {
			m.phase = PhasePolling
		}
	case model.StatusSucceeded:
		m.phase = PhaseSucceeded
		m.result = snap.Result
		m.deps.metrics.jobSucceeded()
	case model.StatusFailed:
		m.phase = PhaseFailed
		m.err = &jobError{kind: snap.ErrorKind, msg: snap.ErrorMessage}
		m.deps.metrics.jobFailed()
	}
	m.touch()
	m.notify()
	m.mu.Unlock()

	m.record(snap, false)
}

// Accept - succeeded → idle, writing the result into the registry
// Publishing runs without the modal lock; a modal reset or closed meanwhile is not written.
func (m *Modal) Accept(ctx context.Context) (registry.Entry, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return registry.Entry{}, ErrClosed
	}
	if m.phase != PhaseSucceeded || m.result == nil {
		m.mu.Unlock()
		return registry.Entry{}, fmt.Errorf("%w: nothing to accept", ErrInvalidTransition)
	}
	gen := m.generation
	entry := registry.Entry{
		ProjectID: m.projectID,
		Asset:     *m.result,
		JobID:     m.jobID,
	}
	m.touch()
	m.mu.Unlock()

	if m.deps.Publisher != nil {
		publicURL, err := m.deps.Publisher.Publish(ctx, m.projectID, entry.Asset)
		if err != nil {
			m.log.Error().Err(err).Msg("❌ [Studio] Publishing accepted asset failed; keeping it locally")
		} else {
			entry.PublicPath = publicURL
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return registry.Entry{}, ErrClosed
	}
	if gen != m.generation {
		return registry.Entry{}, fmt.Errorf("%w: result was dismissed while publishing", ErrInvalidTransition)
	}

	entry.AcceptedAt = m.deps.Now()
	if err := m.deps.Registry.Put(ctx, entry); err != nil {
		return registry.Entry{}, fmt.Errorf("failed to store accepted asset: %w", err)
	}
	m.deps.metrics.assetAccepted()
	m.log.Info().Str("job_id", entry.JobID).Str("public_path", entry.PublicPath).Msg("✅ [Studio] Asset accepted")

	m.toIdle()
	return entry, nil
}

// Discard - succeeded → idle without writing
func (m *Modal) Discard() error {
	return m.back(PhaseSucceeded)
}

// Reset - failed → idle
func (m *Modal) Reset() error {
	return m.back(PhaseFailed)
}

func (m *Modal) back(from Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.phase != from {
		return fmt.Errorf("%w: modal is %s, not %s", ErrInvalidTransition, m.phase, from)
	}
	m.toIdle()
	return nil
}

// toIdle - caller holds m.mu
func (m *Modal) toIdle() {
	if m.jobID != "" {
		m.deps.Jobs.Cancel(m.jobID)
	}
	m.generation++
	m.phase = PhaseIdle
	m.input = Input{}
	m.hasInput = false
	m.jobID = ""
	m.progress = 0
	m.err = nil
	m.result = nil
	m.touch()
	m.notify()
}

// Close - stop observing the in-flight job and freeze the view
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.jobID != "" {
		m.deps.Jobs.Cancel(m.jobID)
	}
	m.closed = true
	m.generation++
	m.notify()
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
	m.log.Info().Str("phase", string(m.phase)).Msg("🔌 [Studio] Modal closed")
}

// Result - the asset of a succeeded job
func (m *Modal) Result() (model.Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseSucceeded || m.result == nil {
		return model.Asset{}, false
	}
	return *m.result, true
}

// View - current render state
func (m *Modal) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view()
}

// Watch - views pushed on every change, latest wins for slow readers
func (m *Modal) Watch() (<-chan View, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan View, 1)
	ch <- m.view()
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			close(w)
			delete(m.watchers, id)
		}
	}
}

// idleFor - time since the last action
func (m *Modal) idleFor(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastActivity)
}

func (m *Modal) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Modal) touch() {
	m.lastActivity = m.deps.Now()
}

// notify - caller holds m.mu
func (m *Modal) notify() {
	v := m.view()
	for _, ch := range m.watchers {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// record - best-effort job audit; failures are only logged
func (m *Modal) record(snap model.JobSnapshot, created bool) {
	if m.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := database.RecordFromSnapshot(snap, m.id, m.projectID)
	var err error
	if created {
		err = m.deps.Store.InsertJob(ctx, rec)
	} else {
		err = m.deps.Store.UpdateJobStatus(ctx, rec)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("job_id", snap.ID).Msg("⚠️  [Studio] Job record not saved")
	}
}

// jobError - terminal job failure carried into the view
type jobError struct {
	kind model.ErrorKind
	msg  string
}

func (e *jobError) Error() string { return e.msg }
