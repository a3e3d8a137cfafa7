package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/model"
)

// maxFetchBytes - upper bound for a remote image pulled into a payload
const maxFetchBytes = 20 << 20

// Encoder - turns a MediaAsset into the base64 payload the remote API wants
type Encoder struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewEncoder - nil client gets a 30s-timeout default
func NewEncoder(httpClient *http.Client, log zerolog.Logger) *Encoder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Encoder{httpClient: httpClient, log: log}
}

// Encode - file first, then inline data, then remote URL
func (e *Encoder) Encode(ctx context.Context, asset model.Asset) (model.EncodedPayload, error) {
	switch {
	case asset.Origin == model.OriginFile && len(asset.Data) > 0:
		return model.Encode(asset.Data, fileMimeType(asset)), nil

	case asset.Origin == model.OriginFile && asset.Path != "":
		data, err := os.ReadFile(asset.Path)
		if err != nil {
			return model.EncodedPayload{}, &model.InputError{Msg: fmt.Sprintf("failed to read %s: %v", filepath.Base(asset.Path), err)}
		}
		return model.Encode(data, fileMimeType(asset)), nil

	case asset.DataURI != "":
		return splitDataURI(asset.DataURI, asset.MimeType)

	case asset.Origin == model.OriginInline && len(asset.Data) > 0:
		return model.Encode(asset.Data, asset.MimeType), nil

	case asset.URL != "":
		return e.fetch(ctx, asset)
	}

	return model.EncodedPayload{}, &model.InputError{}
}

func (e *Encoder) fetch(ctx context.Context, asset model.Asset) (model.EncodedPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return model.EncodedPayload{}, &model.InputError{Msg: fmt.Sprintf("invalid image url: %v", err)}
	}

	e.log.Debug().Str("url", asset.URL).Msg("📥 [Encoder] Fetching remote image")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return model.EncodedPayload{}, &model.TransportError{Op: "fetch image", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.EncodedPayload{}, &model.TransportError{
			Op:  "fetch image",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return model.EncodedPayload{}, &model.TransportError{Op: "read image", Err: err}
	}
	if len(data) > maxFetchBytes {
		return model.EncodedPayload{}, &model.InputError{Msg: fmt.Sprintf("image exceeds %d bytes", maxFetchBytes)}
	}

	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = mediaContentType(resp.Header.Get("Content-Type"))
	}

	e.log.Debug().Int("bytes", len(data)).Str("mime_type", mimeType).Msg("✅ [Encoder] Remote image fetched")
	return model.Encode(data, mimeType), nil
}

// splitDataURI - keep the trailing base64 segment verbatim
func splitDataURI(dataURI, declared string) (model.EncodedPayload, error) {
	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok || !strings.HasPrefix(header, "data:") || payload == "" {
		return model.EncodedPayload{}, &model.InputError{Msg: "malformed data URI"}
	}
	if !strings.HasSuffix(header, ";base64") {
		return model.EncodedPayload{}, &model.InputError{Msg: "data URI is not base64 encoded"}
	}

	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mimeType == "" {
		mimeType = declared
	}
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}
	return model.EncodedPayload{Data: payload, MimeType: mimeType}, nil
}

func fileMimeType(asset model.Asset) string {
	if asset.MimeType != "" {
		return asset.MimeType
	}
	if asset.Path != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(asset.Path))); byExt != "" {
			return strings.TrimSpace(strings.Split(byExt, ";")[0])
		}
	}
	return model.DefaultMimeType
}

func mediaContentType(header string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return model.DefaultMimeType
	}
	if strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "video/") {
		return mediaType
	}
	return model.DefaultMimeType
}
