package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"portfolio-studio-server/modules/common/logger"
	"portfolio-studio-server/modules/common/model"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decoded(t *testing.T, payload model.EncodedPayload) []byte {
	t.Helper()
	data, err := payload.Bytes()
	if err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	return data
}

func TestEncodeOrigins(t *testing.T) {
	red := solidPNG(t, color.RGBA{R: 255, A: 255})

	dir := t.TempDir()
	pngPath := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(pngPath, red, 0o644); err != nil {
		t.Fatal(err)
	}
	jpgPath := filepath.Join(dir, "shot.JPG")
	if err := os.WriteFile(jpgPath, red, 0o644); err != nil {
		t.Fatal(err)
	}
	unknownPath := filepath.Join(dir, "shot")
	if err := os.WriteFile(unknownPath, red, 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/typed.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
		case "/untyped":
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Write(red)
	}))
	defer server.Close()

	dataURI := "data:image/webp;base64," + base64.StdEncoding.EncodeToString(red)

	cases := []struct {
		name     string
		asset    model.Asset
		wantMime string
	}{
		{"file path by extension", model.FileAsset(pngPath, ""), "image/png"},
		{"file path upper-case extension", model.FileAsset(jpgPath, ""), "image/jpeg"},
		{"file path unknown extension", model.FileAsset(unknownPath, ""), model.DefaultMimeType},
		{"file path declared type", model.FileAsset(pngPath, "image/gif"), "image/gif"},
		{"upload declared type", model.UploadAsset(red, "image/png"), "image/png"},
		{"upload without type", model.UploadAsset(red, ""), model.DefaultMimeType},
		{"remote url content type", model.URLAsset(server.URL+"/typed.jpg", ""), "image/jpeg"},
		{"remote url fallback", model.URLAsset(server.URL+"/untyped", ""), model.DefaultMimeType},
		{"remote url declared type", model.URLAsset(server.URL+"/untyped", "image/png"), "image/png"},
		{"inline data uri", model.DataURIAsset(dataURI), "image/webp"},
		{"inline bytes", model.InlineAsset(red, "image/png"), "image/png"},
	}

	enc := NewEncoder(server.Client(), logger.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := enc.Encode(context.Background(), tc.asset)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if payload.MimeType != tc.wantMime {
				t.Fatalf("mime = %q, want %q", payload.MimeType, tc.wantMime)
			}
			if !bytes.Equal(decoded(t, payload), red) {
				t.Fatal("decoded payload differs from source bytes")
			}
		})
	}
}

func TestEncodeDataURIKeepsPayloadVerbatim(t *testing.T) {
	enc := NewEncoder(nil, logger.Nop())
	payload, err := enc.Encode(context.Background(), model.DataURIAsset("data:image/png;base64,iVBORw0KGgo="))
	if err != nil {
		t.Fatal(err)
	}
	if payload.Data != "iVBORw0KGgo=" {
		t.Fatalf("payload = %q", payload.Data)
	}
}

func TestEncodeNoSource(t *testing.T) {
	enc := NewEncoder(nil, logger.Nop())
	payload, err := enc.Encode(context.Background(), model.Asset{})

	var inputErr *model.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("err = %v, want InputError", err)
	}
	if err.Error() != "no image source found" {
		t.Fatalf("message = %q", err.Error())
	}
	if payload != (model.EncodedPayload{}) {
		t.Fatalf("payload produced on failure: %+v", payload)
	}
}

func TestEncodeFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	enc := NewEncoder(server.Client(), logger.Nop())
	ctx := context.Background()

	_, err := enc.Encode(ctx, model.URLAsset(server.URL+"/missing.png", ""))
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("404 fetch: err = %v, want TransportError", err)
	}

	_, err = enc.Encode(ctx, model.FileAsset(filepath.Join(t.TempDir(), "nope.png"), ""))
	var inputErr *model.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("missing file: err = %v, want InputError", err)
	}

	for _, uri := range []string{"data:image/png,plain", "not-a-data-uri", "data:image/png;base64,"} {
		if _, err := enc.Encode(ctx, model.DataURIAsset(uri)); !errors.As(err, &inputErr) {
			t.Fatalf("data uri %q: err = %v, want InputError", uri, err)
		}
	}
}
