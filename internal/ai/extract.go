package ai

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/local/genstudio/internal/artifact"
)

// ImageFromResponse scans the response parts in order and returns the first
// inline binary payload. Text parts are accumulated as a potential model
// refusal and surfaced only when no binary part exists.
func ImageFromResponse(resp *GenerateResponse) (artifact.Image, error) {
	var refusal strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return artifact.Image{}, fmt.Errorf("decode inline data: %w", err)
				}
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return artifact.Image{MIME: mime, Data: data}, nil
			}
			if part.Text != "" {
				refusal.WriteString(part.Text)
			}
		}
	}
	if msg := strings.TrimSpace(refusal.String()); msg != "" {
		return artifact.Image{}, errors.New(msg)
	}
	return artifact.Image{}, errors.New("no image data returned")
}

// ReplyFromResponse extracts chat text and grounding citations.
func ReplyFromResponse(resp *GenerateResponse) (artifact.Reply, error) {
	var out artifact.Reply
	var text strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if cand.GroundingMetadata != nil {
			for _, chunk := range cand.GroundingMetadata.GroundingChunks {
				if chunk.Web != nil && chunk.Web.URI != "" {
					out.Citations = append(out.Citations, artifact.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
				}
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	if out.Text == "" {
		return artifact.Reply{}, errors.New("no text returned")
	}
	return out, nil
}
