package jobclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/gemini"
	"portfolio-studio-server/modules/common/model"
	"portfolio-studio-server/modules/common/session"
)

// Remote - the generative endpoints a job talks to (gemini.Service in production)
type Remote interface {
	EditImage(ctx context.Context, payload model.EncodedPayload, instruction string) ([]gemini.Part, error)
	StartVideo(ctx context.Context, payload model.EncodedPayload, cfg gemini.VideoConfig) (*gemini.Operation, error)
	PollVideo(ctx context.Context, name string) (*gemini.Operation, error)
	FetchVideo(ctx context.Context, ref gemini.VideoRef) (model.Asset, error)
}

const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// Client - submits jobs to the remote service and tracks them to a terminal state
type Client struct {
	remote Remote
	gate   *session.Gate
	log    zerolog.Logger

	pollInterval    time.Duration
	maxPollAttempts int
	pollDeadline    time.Duration
	progressStep    int
	sleep           func(ctx context.Context, d time.Duration) error
	now             func() time.Time
	newID           func() string

	mu   sync.Mutex
	jobs map[string]*tracked
}

// tracked - one job plus its observers
type tracked struct {
	job    *model.Job
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	nextSub   int
	subs      map[int]chan model.JobSnapshot
}

// NewClient - remote and gate are required
func NewClient(remote Remote, gate *session.Gate, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		remote:          remote,
		gate:            gate,
		log:             log,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		pollDeadline:    DefaultPollDeadline,
		progressStep:    DefaultProgressStep,
		sleep:           sleepContext,
		now:             time.Now,
		newID:           uuid.NewString,
		jobs:            make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitImageEdit - one round trip; the returned job is already terminal
func (c *Client) SubmitImageEdit(ctx context.Context, payload model.EncodedPayload, instruction string) *model.Job {
	t := c.track(model.KindImageEdit, payload, nil)
	job := t.job

	if payload.Data == "" {
		c.fail(t, &model.InputError{})
		return job
	}
	if strings.TrimSpace(instruction) == "" {
		c.fail(t, &model.InputError{Msg: "edit instruction is required"})
		return job
	}

	if err := c.gate.EnsureSession(ctx); err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID()).Msg("🔑 [JobClient] No session, image edit not submitted")
		c.fail(t, &model.SessionLostError{Err: err})
		return job
	}

	job.Start("", c.now())
	c.publish(t)

	c.log.Info().Str("job_id", job.ID()).Str("mime_type", payload.MimeType).Msg("🎨 [JobClient] Image edit submitted")

	parts, err := c.remote.EditImage(ctx, payload, instruction)
	if err != nil {
		c.fail(t, c.classify(ctx, "edit image", err))
		return job
	}

	img, ok := gemini.FirstInlineImage(parts)
	if !ok {
		c.fail(t, &model.NoResultError{Kind: model.KindImageEdit})
		return job
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}
	job.Succeed(model.InlineAsset(img.Data, mimeType), c.now())
	c.log.Info().Str("job_id", job.ID()).Int("bytes", len(img.Data)).Msg("✅ [JobClient] Image edit succeeded")
	c.publish(t)
	return job
}

// SubmitVideoGeneration - submit and return the running job; polling continues in the background
// ctx bounds the submission only. The poll loop outlives it and ends via Cancel or a terminal state.
func (c *Client) SubmitVideoGeneration(ctx context.Context, payload model.EncodedPayload, cfg gemini.VideoConfig) *model.Job {
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := c.track(model.KindVideoGenerate, payload, cancel)
	job := t.job

	if payload.Data == "" {
		c.fail(t, &model.InputError{})
		return job
	}
	switch cfg.AspectRatio {
	case "":
		cfg.AspectRatio = AspectLandscape
	case AspectLandscape, AspectPortrait:
	default:
		c.fail(t, &model.InputError{Msg: fmt.Sprintf("aspect ratio must be %s or %s, got %q", AspectLandscape, AspectPortrait, cfg.AspectRatio)})
		return job
	}

	if err := c.gate.EnsureSession(ctx); err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID()).Msg("🔑 [JobClient] No session, video not submitted")
		c.fail(t, &model.SessionLostError{Err: err})
		return job
	}

	c.log.Info().
		Str("job_id", job.ID()).
		Str("aspect_ratio", cfg.AspectRatio).
		Str("resolution", cfg.Resolution).
		Msg("🎬 [JobClient] Video generation submitted")

	op, err := c.remote.StartVideo(ctx, payload, cfg)
	if err != nil {
		c.fail(t, c.classify(ctx, "start video", err))
		return job
	}
	if op == nil || (op.Name == "" && !op.Done) {
		c.fail(t, &model.TransportError{Op: "start video", Err: errors.New("remote returned no operation handle")})
		return job
	}

	job.Start(op.Name, c.now())
	c.publish(t)

	go c.pollUntilTerminal(pollCtx, t, op)
	return job
}

// pollUntilTerminal - sequential status queries until done, fault, timeout or cancel
func (c *Client) pollUntilTerminal(ctx context.Context, t *tracked, op *gemini.Operation) {
	job := t.job
	started := c.now()
	polls := 0

	for !op.Done {
		if ctx.Err() != nil {
			return
		}
		if polls >= c.maxPollAttempts || c.now().Sub(started) >= c.pollDeadline {
			c.log.Warn().Str("job_id", job.ID()).Int("polls", polls).Msg("⏰ [JobClient] Video job timed out")
			c.fail(t, &model.TimeoutError{Attempts: polls, Elapsed: c.now().Sub(started)})
			return
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return
		}

		next, err := c.remote.PollVideo(ctx, job.Handle())
		polls++
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.fail(t, c.classify(ctx, "poll video", err))
			return
		}
		if next == nil {
			c.fail(t, &model.TransportError{Op: "poll video", Err: errors.New("empty operation status")})
			return
		}
		op = next
		if op.Done {
			break
		}

		state, ok := job.Advance(c.progressStep, c.now())
		if !ok {
			return
		}
		c.log.Debug().Str("job_id", job.ID()).Int("attempt", state.Attempts).Int("progress", state.Progress).Msg("⏳ [JobClient] Video still generating")
		c.publish(t)
	}

	c.finishVideo(ctx, t, op)
}

// finishVideo - resolve a done operation into the job's result
func (c *Client) finishVideo(ctx context.Context, t *tracked, op *gemini.Operation) {
	job := t.job

	if op.Error != "" {
		c.fail(t, &model.TransportError{Op: "video operation", Err: errors.New(op.Error)})
		return
	}

	var first *gemini.VideoRef
	if len(op.Videos) > 0 && (op.Videos[0].URI != "" || len(op.Videos[0].Data) > 0) {
		first = &op.Videos[0]
	}
	if first == nil {
		c.fail(t, &model.NoResultError{Kind: model.KindVideoGenerate})
		return
	}

	asset, err := c.remote.FetchVideo(ctx, *first)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.fail(t, c.classify(ctx, "fetch video", err))
		return
	}

	job.Succeed(asset, c.now())
	c.log.Info().Str("job_id", job.ID()).Int("bytes", len(asset.Data)).Msg("✅ [JobClient] Video generation succeeded")
	c.publish(t)
}

// classify - map a remote failure onto the job error taxonomy
// Session loss triggers exactly one reselection; nothing is resubmitted.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, gemini.ErrSessionLost) {
		c.log.Warn().Err(err).Str("op", op).Msg("🔑 [JobClient] Session lost, prompting for a new key")
		if reErr := c.gate.Reselect(context.WithoutCancel(ctx)); reErr != nil {
			c.log.Error().Err(reErr).Msg("❌ [JobClient] Session reselection failed")
		}
		return &model.SessionLostError{Err: err}
	}
	return &model.TransportError{Op: op, Err: err}
}

func (c *Client) fail(t *tracked, err error) {
	if t.job.Fail(err, c.now()) {
		c.log.Error().Err(err).Str("job_id", t.job.ID()).Str("kind", string(model.KindOf(err))).Msg("❌ [JobClient] Job failed")
		c.publish(t)
	}
}

// Job - lookup of a tracked job
func (c *Client) Job(jobID string) (*model.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.jobs[jobID]
	if !ok {
		return nil, false
	}
	return t.job, true
}

// Active - jobs not yet terminal
func (c *Client) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.jobs {
		if !t.job.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// Cancel - stop observing a job and forget it
// The remote operation is not cancelled; a late result is discarded.
func (c *Client) Cancel(jobID string) bool {
	c.mu.Lock()
	t, ok := c.jobs[jobID]
	delete(c.jobs, jobID)
	c.mu.Unlock()
	if !ok {
		return false
	}

	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.cancelled = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()

	c.log.Info().Str("job_id", jobID).Str("status", string(t.job.Status())).Msg("🛑 [JobClient] Job observation cancelled")
	return true
}

// Subscribe - snapshots of the job, starting with the current one
// Slow readers only see the latest snapshot. The channel closes after the
// terminal snapshot, on Cancel, or when the returned func is called.
func (c *Client) Subscribe(jobID string) (<-chan model.JobSnapshot, func()) {
	ch := make(chan model.JobSnapshot, 1)

	c.mu.Lock()
	t, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		close(ch)
		return ch, func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.job.Snapshot()
	ch <- snap
	if t.cancelled || snap.Status.IsTerminal() {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			close(sub)
			delete(t.subs, id)
		}
	}
}

func (c *Client) track(kind model.JobKind, payload model.EncodedPayload, cancel context.CancelFunc) *tracked {
	t := &tracked{
		job:    model.NewJob(c.newID(), kind, payload, c.now()),
		cancel: cancel,
		subs:   make(map[int]chan model.JobSnapshot),
	}
	c.mu.Lock()
	c.jobs[t.job.ID()] = t
	c.mu.Unlock()
	return t
}

// publish - fan the current snapshot out to subscribers unless cancelled
func (c *Client) publish(t *tracked) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}

	snap := t.job.Snapshot()
	for id, ch := range t.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
		if snap.Status.IsTerminal() {
			close(ch)
			delete(t.subs, id)
		}
	}
}
