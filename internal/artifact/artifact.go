package artifact

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Kind identifies what a stored artifact is.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindChat  Kind = "chat"
)

// Image is a generated or edited raster image.
type Image struct {
	MIME string
	Data []byte
}

// Video is a generated video clip. URI is the backend object reference the
// bytes were fetched from, kept for traceability.
type Video struct {
	MIME string
	Data []byte
	URI  string
}

// Citation is a grounding source returned with search-augmented chat.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Reply is a chat response with optional grounding citations.
type Reply struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Item describes a gallery entry.
type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	MIME      string    `json:"mime"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// DataURI encodes the image as a self-describing data URI.
func (im Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", im.MIME, base64.StdEncoding.EncodeToString(im.Data))
}

// ParseDataURI decodes a data:<mime>;base64,<payload> string back into an Image.
func ParseDataURI(s string) (Image, error) {
	if !strings.HasPrefix(s, "data:") {
		return Image{}, fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(s, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return Image{}, fmt.Errorf("data URI is not base64-encoded")
	}
	mime := rest[:sep]
	if mime == "" {
		return Image{}, fmt.Errorf("data URI has no MIME type")
	}
	data, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return Image{}, fmt.Errorf("decode data URI payload: %w", err)
	}
	return Image{MIME: mime, Data: data}, nil
}

// SniffMIME detects a MIME type from content using magic bytes. Used for
// downloaded binaries where the backend does not declare a content type.
func SniffMIME(data []byte) string {
	return mimetype.Detect(data).String()
}
