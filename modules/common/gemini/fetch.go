package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"portfolio-studio-server/modules/common/model"
)

// maxVideoBytes - generated clips are a few MB; anything past this is refused
const maxVideoBytes = 200 << 20

// AssetURL - the asset location with the session's API key appended as ?key=
func AssetURL(location, apiKey string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid asset location %q: %w", location, err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// FetchVideo - bytes of a generated video; inline data is returned as-is
func (s *Service) FetchVideo(ctx context.Context, ref VideoRef) (model.Asset, error) {
	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	if len(ref.Data) > 0 {
		return model.InlineAsset(ref.Data, mimeType), nil
	}
	if ref.URI == "" {
		return model.Asset{}, fmt.Errorf("video has neither bytes nor location")
	}

	apiKey := ""
	if s.keys != nil {
		apiKey = s.keys.APIKey()
	}
	fetchURL, err := AssetURL(ref.URI, apiKey)
	if err != nil {
		return model.Asset{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to create download request: %w", err)
	}

	s.log.Info().Str("uri", ref.URI).Msg("📥 [Gemini] Downloading generated video")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Asset{}, fmt.Errorf("failed to download video: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes+1))
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to read video data: %w", err)
	}
	if len(data) > maxVideoBytes {
		return model.Asset{}, fmt.Errorf("video exceeds %d bytes", maxVideoBytes)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "video/") {
		mimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}

	s.log.Info().Int("bytes", len(data)).Msg("✅ [Gemini] Video downloaded")
	return model.InlineAsset(data, mimeType), nil
}
