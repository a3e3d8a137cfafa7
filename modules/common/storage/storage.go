package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/model"
)

// ConvertFunc - image re-encoder applied before upload (WebP in production)
type ConvertFunc func(data []byte, quality float32) ([]byte, error)

// Publisher - uploads accepted assets to Supabase Storage
type Publisher struct {
	baseURL    string
	serviceKey string
	bucket     string
	quality    float32
	convert    ConvertFunc
	httpClient *http.Client
	log        zerolog.Logger
}

// NewPublisher - convert may be nil to upload images untouched
func NewPublisher(baseURL, serviceKey, bucket string, quality float32, convert ConvertFunc, httpClient *http.Client, log zerolog.Logger) *Publisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Publisher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		quality:    quality,
		convert:    convert,
		httpClient: httpClient,
		log:        log,
	}
}

// Publish - upload the asset under the project's folder, returns its public URL
func (p *Publisher) Publish(ctx context.Context, projectID string, asset model.Asset) (string, error) {
	if len(asset.Data) == 0 {
		return "", fmt.Errorf("asset has no bytes to publish")
	}

	data := asset.Data
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}
	ext := extensionFor(mimeType)

	if strings.HasPrefix(mimeType, "image/") && p.convert != nil {
		webpData, err := p.convert(data, p.quality)
		if err != nil {
			return "", fmt.Errorf("failed to convert image to WebP: %w", err)
		}
		p.log.Debug().Int("before", len(data)).Int("after", len(webpData)).Msg("🔄 [Storage] Converted to WebP")
		data, mimeType, ext = webpData, "image/webp", "webp"
	}

	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	filePath := fmt.Sprintf("studio/project-%s/edited_%d_%s.%s", url.PathEscape(projectID), timestamp, uuid.NewString()[:8], ext)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", p.baseURL, p.bucket, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.serviceKey)
	req.Header.Set("Content-Type", mimeType)

	p.log.Info().Str("path", filePath).Int("bytes", len(data)).Msg("📤 [Storage] Uploading asset")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := p.PublicURL(filePath)
	p.log.Info().Str("url", publicURL).Msg("✅ [Storage] Asset published")
	return publicURL, nil
}

// PublicURL - public object URL for a path inside the bucket
func (p *Publisher) PublicURL(filePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", p.baseURL, p.bucket, strings.TrimLeft(filePath, "/"))
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	}
	if i := strings.Index(mimeType, "/"); i >= 0 && i < len(mimeType)-1 {
		return mimeType[i+1:]
	}
	return "bin"
}
