package gemini

// Part - one output part of an image-edit response
type Part interface {
	isPart()
}

// TextPart - model commentary, ignored for results
type TextPart struct {
	Text string
}

// InlineImagePart - image bytes returned inline
type InlineImagePart struct {
	Data     []byte
	MimeType string
}

func (TextPart) isPart()        {}
func (InlineImagePart) isPart() {}

// FirstInlineImage - explicit first-match search over typed parts
func FirstInlineImage(parts []Part) (InlineImagePart, bool) {
	for _, part := range parts {
		if img, ok := part.(InlineImagePart); ok && len(img.Data) > 0 {
			return img, true
		}
	}
	return InlineImagePart{}, false
}

// VideoConfig - generation settings sent with a video submission
type VideoConfig struct {
	Prompt         string
	AspectRatio    string // "16:9" or "9:16"
	Resolution     string // "720p", "1080p"
	NumberOfVideos int
}

// VideoRef - one generated video: a remote location, inline bytes, or both
type VideoRef struct {
	URI      string
	Data     []byte
	MimeType string
}

// Operation - long-running video job as reported by the remote
type Operation struct {
	Name   string
	Done   bool
	Videos []VideoRef
	Error  string
}
