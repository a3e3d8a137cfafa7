package gemini

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"portfolio-studio-server/modules/common/model"
)

// KeySource - supplies the API key of the currently selected session
type KeySource interface {
	APIKey() string
}

// Options - how the Service reaches the remote generative API
type Options struct {
	ImageModel string
	VideoModel string

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string

	// Vertex backend; nil means the Gemini API with per-session API keys.
	Vertex *VertexOptions

	HTTPClient *http.Client

	// RateLimitAttempts > 1 retries 429 responses inside one call.
	RateLimitAttempts int
	RetryDelay        time.Duration
	Sleeper           func(time.Duration)
}

// Service - adapter over google.golang.org/genai for the edit and video endpoints
// One genai client is kept per API key so a session switch is a map lookup.
type Service struct {
	imageModel string
	videoModel string
	baseURL    string
	vertex     *VertexOptions
	keys       KeySource
	httpClient *http.Client
	log        zerolog.Logger

	rateLimitAttempts int
	retryDelay        time.Duration
	sleeper           func(time.Duration)

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewService - keys is consulted on every call
func NewService(opts Options, keys KeySource, log zerolog.Logger) *Service {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Service{
		imageModel:        opts.ImageModel,
		videoModel:        opts.VideoModel,
		baseURL:           opts.BaseURL,
		vertex:            opts.Vertex,
		keys:              keys,
		httpClient:        httpClient,
		log:               log,
		rateLimitAttempts: opts.RateLimitAttempts,
		retryDelay:        retryDelay,
		sleeper:           opts.Sleeper,
		clients:           make(map[string]*genai.Client),
	}
}

// client - genai client for the active session
func (s *Service) client(ctx context.Context) (*genai.Client, error) {
	key := ""
	if s.vertex == nil {
		key = s.keys.APIKey()
		if key == "" {
			return nil, fmt.Errorf("%w: no API key selected", ErrSessionLost)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[key]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	}
	if s.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.baseURL}
	}
	if s.vertex != nil {
		creds, err := s.vertex.credentials()
		if err != nil {
			return nil, err
		}
		cfg.APIKey = ""
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = s.vertex.Project
		cfg.Location = s.vertex.Location
		cfg.Credentials = creds
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	s.clients[key] = c
	return c, nil
}

// EditImage - image + instruction in, typed output parts back
func (s *Service) EditImage(ctx context.Context, payload model.EncodedPayload, instruction string) ([]Part, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, err
	}

	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, payload.MimeType),
			genai.NewPartFromText(instruction),
		},
	}}

	s.log.Info().
		Str("model", s.imageModel).
		Int("bytes", len(data)).
		Str("instruction", truncateString(instruction, 50)).
		Msg("🎨 [Gemini] Editing image")

	var result *genai.GenerateContentResponse
	err = s.withRateLimitRetry(ctx, "edit image", func() error {
		var callErr error
		result, callErr = c.Models.GenerateContent(ctx, s.imageModel, contents, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var parts []Part
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch {
			case part == nil:
			case part.InlineData != nil && len(part.InlineData.Data) > 0:
				parts = append(parts, InlineImagePart{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType})
			case part.Text != "":
				parts = append(parts, TextPart{Text: part.Text})
			}
		}
	}

	s.log.Debug().Int("parts", len(parts)).Msg("✅ [Gemini] Edit response received")
	return parts, nil
}

// StartVideo - submit an image-to-video job, returns the operation handle
func (s *Service) StartVideo(ctx context.Context, payload model.EncodedPayload, cfg VideoConfig) (*Operation, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, err
	}

	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	count := cfg.NumberOfVideos
	if count <= 0 {
		count = 1
	}
	genCfg := &genai.GenerateVideosConfig{
		NumberOfVideos: int32(count),
		AspectRatio:    cfg.AspectRatio,
		Resolution:     cfg.Resolution,
	}
	image := &genai.Image{ImageBytes: data, MIMEType: payload.MimeType}

	s.log.Info().
		Str("model", s.videoModel).
		Str("aspect_ratio", cfg.AspectRatio).
		Str("resolution", cfg.Resolution).
		Msg("🎬 [Gemini] Submitting video generation")

	var op *genai.GenerateVideosOperation
	err = s.withRateLimitRetry(ctx, "generate video", func() error {
		var callErr error
		op, callErr = c.Models.GenerateVideos(ctx, s.videoModel, cfg.Prompt, image, genCfg)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return convertOperation(op), nil
}

// PollVideo - query operation status by handle
func (s *Service) PollVideo(ctx context.Context, name string) (*Operation, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var op *genai.GenerateVideosOperation
	err = s.withRateLimitRetry(ctx, "poll video", func() error {
		var callErr error
		op, callErr = c.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: name}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return convertOperation(op), nil
}

func convertOperation(op *genai.GenerateVideosOperation) *Operation {
	if op == nil {
		return &Operation{}
	}
	out := &Operation{Name: op.Name, Done: op.Done}
	if len(op.Error) > 0 {
		out.Error = fmt.Sprint(op.Error["message"])
		if out.Error == "" || out.Error == "<nil>" {
			out.Error = fmt.Sprint(op.Error)
		}
	}
	if op.Response != nil {
		for _, generated := range op.Response.GeneratedVideos {
			if generated == nil || generated.Video == nil {
				continue
			}
			out.Videos = append(out.Videos, VideoRef{
				URI:      generated.Video.URI,
				Data:     generated.Video.VideoBytes,
				MimeType: generated.Video.MIMEType,
			})
		}
	}
	return out
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
