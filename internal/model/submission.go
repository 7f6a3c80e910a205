package model

import "strings"

// ContentType is the modality of a submission
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentURL   ContentType = "url"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
)

// ParseContentType accepts the wire names of the five modalities
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case ContentText:
		return ContentText, true
	case ContentURL:
		return ContentURL, true
	case ContentImage:
		return ContentImage, true
	case ContentAudio:
		return ContentAudio, true
	case ContentVideo:
		return ContentVideo, true
	}
	return "", false
}

// Cacheable reports whether verdicts for this modality may be replayed
func (c ContentType) Cacheable() bool {
	return c == ContentText || c == ContentURL
}

// Blob is decoded binary media with its MIME type
type Blob struct {
	Data     []byte
	MimeType string
}

// VideoRef describes an uploaded video. Only metadata reaches the engine.
type VideoRef struct {
	LocationID string `json:"locationId,omitempty" firestore:"locationId,omitempty"`
	FileName   string `json:"fileName" firestore:"fileName"`
	Size       int64  `json:"fileSize" firestore:"fileSize"`
	MimeType   string `json:"fileType" firestore:"fileType"`
}

// Submission is the raw user input before normalization
type Submission struct {
	Type  ContentType // Declared modality, may be empty
	Text  string
	URL   string
	Image *Blob
	Audio *Blob
	Video *VideoRef
}

// Empty reports whether the submission carries no content at all
func (s Submission) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && strings.TrimSpace(s.URL) == "" &&
		s.Image == nil && s.Audio == nil && s.Video == nil
}
