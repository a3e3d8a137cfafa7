package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"portfolio-studio-server/modules/common/logger"
	"portfolio-studio-server/modules/common/model"
)

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

func TestFirstInlineImage(t *testing.T) {
	parts := []Part{
		TextPart{Text: "Here is your edit"},
		InlineImagePart{MimeType: "image/png"},
		InlineImagePart{Data: []byte("first"), MimeType: "image/png"},
		InlineImagePart{Data: []byte("second"), MimeType: "image/jpeg"},
	}
	img, ok := FirstInlineImage(parts)
	if !ok || string(img.Data) != "first" {
		t.Fatalf("FirstInlineImage = %+v, %v", img, ok)
	}
	if _, ok := FirstInlineImage([]Part{TextPart{Text: "sorry"}}); ok {
		t.Fatal("text-only response produced an image")
	}
	if _, ok := FirstInlineImage(nil); ok {
		t.Fatal("empty response produced an image")
	}
}

func TestAssetURL(t *testing.T) {
	got, err := AssetURL("https://x/y.mp4", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://x/y.mp4?key=secret" {
		t.Fatalf("url = %q", got)
	}

	got, _ = AssetURL("https://x/files/abc:download?alt=media", "k")
	if !strings.Contains(got, "alt=media") || !strings.Contains(got, "key=k") {
		t.Fatalf("existing query dropped: %q", got)
	}

	got, _ = AssetURL("https://x/y.mp4", "")
	if got != "https://x/y.mp4" {
		t.Fatalf("empty key changed url: %q", got)
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !is429Error(errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")) {
		t.Fatal("429 not detected")
	}
	if is429Error(errors.New("Error 500")) || is429Error(nil) {
		t.Fatal("false positive 429")
	}
	if !isSessionLostError(errors.New("Error 404, Message: Requested entity was not found., Status: NOT_FOUND")) {
		t.Fatal("entity-not-found not detected")
	}
	if !isSessionLostError(errors.New("Error 400, Message: API key not valid. Please pass a valid API key.")) {
		t.Fatal("invalid key not detected")
	}
	if isSessionLostError(errors.New("connection reset by peer")) {
		t.Fatal("network error classified as session loss")
	}
	for _, msg := range []string{
		"Error 403, Message: The caller does not have permission, Status: PERMISSION_DENIED",
		"Error 401, Message: Request had invalid authentication credentials, Status: UNAUTHENTICATED",
	} {
		if isSessionLostError(errors.New(msg)) {
			t.Fatalf("%q classified as session loss", msg)
		}
	}
}

func TestRateLimitRetry(t *testing.T) {
	var slept []time.Duration
	svc := NewService(Options{RateLimitAttempts: 3, RetryDelay: time.Second, Sleeper: func(d time.Duration) {
		slept = append(slept, d)
	}}, staticKey("k"), logger.Nop())

	calls := 0
	err := svc.withRateLimitRetry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("Error 429: quota")
		}
		return nil
	})
	if err != nil || calls != 3 || len(slept) != 2 {
		t.Fatalf("err=%v calls=%d slept=%v", err, calls, slept)
	}

	calls = 0
	err = svc.withRateLimitRetry(context.Background(), "test", func() error {
		calls++
		return errors.New("Error 500: backend")
	})
	if err == nil || calls != 1 {
		t.Fatalf("non-429 retried: err=%v calls=%d", err, calls)
	}

	err = svc.withRateLimitRetry(context.Background(), "test", func() error {
		return errors.New("Requested entity was not found.")
	})
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("session loss not wrapped: %v", err)
	}

	single := NewService(Options{}, staticKey("k"), logger.Nop())
	calls = 0
	single.withRateLimitRetry(context.Background(), "test", func() error {
		calls++
		return errors.New("429")
	})
	if calls != 1 {
		t.Fatalf("default service retried %d times", calls)
	}
}

func TestFetchVideo(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		if r.URL.Path == "/missing.mp4" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	svc := NewService(Options{HTTPClient: server.Client()}, staticKey("secret"), logger.Nop())
	ctx := context.Background()

	asset, err := svc.FetchVideo(ctx, VideoRef{URI: server.URL + "/clip.mp4"})
	if err != nil {
		t.Fatalf("FetchVideo: %v", err)
	}
	if string(asset.Data) != "mp4-bytes" || asset.MimeType != "video/mp4" {
		t.Fatalf("asset = %q %q", asset.Data, asset.MimeType)
	}
	if q, _ := gotQuery.Load().(string); q != "key=secret" {
		t.Fatalf("query = %q", q)
	}

	if _, err := svc.FetchVideo(ctx, VideoRef{URI: server.URL + "/missing.mp4"}); err == nil {
		t.Fatal("404 download succeeded")
	}

	inline, err := svc.FetchVideo(ctx, VideoRef{Data: []byte("inline")})
	if err != nil || string(inline.Data) != "inline" || inline.MimeType != "video/mp4" {
		t.Fatalf("inline = %+v, %v", inline, err)
	}

	if _, err := svc.FetchVideo(ctx, VideoRef{}); err == nil {
		t.Fatal("empty ref succeeded")
	}
}

func TestEditImageAgainstRESTEndpoint(t *testing.T) {
	blue := []byte("blue-png")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "generateContent") {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Done."},{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`,
			base64.StdEncoding.EncodeToString(blue))
	}))
	defer server.Close()

	svc := NewService(Options{ImageModel: "gemini-2.5-flash-image", BaseURL: server.URL, HTTPClient: server.Client()}, staticKey("k"), logger.Nop())
	parts, err := svc.EditImage(context.Background(), model.Encode([]byte("red-png"), "image/png"), "make it blue")
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	img, ok := FirstInlineImage(parts)
	if !ok || string(img.Data) != string(blue) || img.MimeType != "image/png" {
		t.Fatalf("parts = %+v", parts)
	}
	if _, isText := parts[0].(TextPart); !isText {
		t.Fatalf("first part = %T, want TextPart", parts[0])
	}
}

func TestClientRequiresSelectedKey(t *testing.T) {
	svc := NewService(Options{}, staticKey(""), logger.Nop())
	_, err := svc.EditImage(context.Background(), model.Encode([]byte("x"), "image/png"), "edit")
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("err = %v, want ErrSessionLost", err)
	}
}
