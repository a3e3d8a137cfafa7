package model

import (
	"encoding/base64"
	"fmt"
)

// Origin - where a MediaAsset's bytes come from
type Origin string

const (
	OriginNone   Origin = ""
	OriginFile   Origin = "file"
	OriginURL    Origin = "url"
	OriginInline Origin = "inline"
)

// DefaultMimeType - fallback when the caller does not know the asset's type
const DefaultMimeType = "image/png"

// Asset - a binary image or video plus its mime type (MediaAsset)
// Immutable once captured; the owning modal drops it on close or replacement.
type Asset struct {
	Origin   Origin `json:"origin"`
	Path     string `json:"path,omitempty"`     // OriginFile on disk
	URL      string `json:"url,omitempty"`      // OriginURL
	DataURI  string `json:"data_uri,omitempty"` // OriginInline as received
	Data     []byte `json:"-"`                  // OriginFile upload contents, or OriginInline bytes
	MimeType string `json:"mime_type,omitempty"`
}

// FileAsset - local file on disk
func FileAsset(path, mimeType string) Asset {
	return Asset{Origin: OriginFile, Path: path, MimeType: mimeType}
}

// UploadAsset - local file whose contents were already read (multipart upload)
func UploadAsset(data []byte, mimeType string) Asset {
	return Asset{Origin: OriginFile, Data: data, MimeType: mimeType}
}

// URLAsset - remote resource fetched at encode time
func URLAsset(url, mimeType string) Asset {
	return Asset{Origin: OriginURL, URL: url, MimeType: mimeType}
}

// DataURIAsset - inline "data:<mime>;base64,<payload>" string
func DataURIAsset(dataURI string) Asset {
	return Asset{Origin: OriginInline, DataURI: dataURI}
}

// InlineAsset - raw bytes returned by the remote service
func InlineAsset(data []byte, mimeType string) Asset {
	return Asset{Origin: OriginInline, Data: data, MimeType: mimeType}
}

// IsZero reports whether no origin yields bytes.
func (a Asset) IsZero() bool {
	return a.Path == "" && a.URL == "" && a.DataURI == "" && len(a.Data) == 0
}

// EncodedPayload - base64 transport form of an Asset
// Lives for one submission only; never persisted.
type EncodedPayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// Bytes - decode the payload back into binary
func (p EncodedPayload) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return data, nil
}

// DataURI - render the payload as a data URI for the browser
func (p EncodedPayload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.Data)
}

// Encode - base64 form of inline bytes
func Encode(data []byte, mimeType string) EncodedPayload {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return EncodedPayload{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}
