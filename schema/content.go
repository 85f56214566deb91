// Package schema defines the provider-agnostic message, content, tool, and
// session types shared by the llm package and its providers.
package schema

// ContentType identifies the kind of a ContentPart.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

// ContentPart is one piece of a message's (possibly multi-modal) content.
type ContentPart interface {
	PartType() ContentType
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

func (TextPart) PartType() ContentType { return ContentText }

// ImagePart is image content, either inline bytes or a URL.
type ImagePart struct {
	Data     []byte
	MimeType string
	URL      string
}

func (ImagePart) PartType() ContentType { return ContentImage }

// AudioPart is inline audio content with its format and sample rate; it has
// no URL field.
type AudioPart struct {
	Data       []byte
	Format     string
	SampleRate int
}

func (AudioPart) PartType() ContentType { return ContentAudio }

// VideoPart is video content, either inline bytes or a URL.
type VideoPart struct {
	Data     []byte
	MimeType string
	URL      string
}

func (VideoPart) PartType() ContentType { return ContentVideo }

// FilePart is an arbitrary named file attachment.
type FilePart struct {
	Data     []byte
	Name     string
	MimeType string
}

func (FilePart) PartType() ContentType { return ContentFile }
