package domain

// ContentKind discriminates the message content union.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentVideo    ContentKind = "video"
	ContentAudio    ContentKind = "audio"
	ContentFile     ContentKind = "file"
	ContentVoice    ContentKind = "voice"
	ContentSticker  ContentKind = "sticker"
	ContentContact  ContentKind = "contact"
	ContentLocation ContentKind = "location"
)

// MessageContent is a tagged union dispatched on Kind. Exactly the fields
// belonging to the active kind are populated.
type MessageContent struct {
	Kind ContentKind `json:"kind"`

	Body       string       `json:"body,omitempty"`        // text
	Attachment *Attachment  `json:"attachment,omitempty"`  // image/video/audio/file/voice
	Caption    string       `json:"caption,omitempty"`     // image/video
	DurationMS uint32       `json:"duration_ms,omitempty"` // voice
	PackID     string       `json:"pack_id,omitempty"`     // sticker
	StickerID  uint32       `json:"sticker_id,omitempty"`  // sticker
	Contact    *ContactInfo `json:"contact,omitempty"`     // contact
	Latitude   float64      `json:"latitude,omitempty"`    // location
	Longitude  float64      `json:"longitude,omitempty"`   // location
	Place      string       `json:"place,omitempty"`       // location
}

// MessageStatus is the delivery state of an outgoing message.
type MessageStatus int

const (
	StatusSending MessageStatus = iota
	StatusSent
	StatusDelivered
	StatusRead
	StatusFailed
)

// Attachment describes an encrypted blob stored outside the message.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name,omitempty"`
	Size        uint64 `json:"size"`
	Digest      []byte `json:"digest"`
	Width       uint32 `json:"width,omitempty"`
	Height      uint32 `json:"height,omitempty"`
}

// ContactInfo is a shared contact card.
type ContactInfo struct {
	Name         string   `json:"name"`
	PhoneNumbers []string `json:"phone_numbers,omitempty"`
	Emails       []string `json:"emails,omitempty"`
}

// Reaction is an emoji reaction to a message.
type Reaction struct {
	Emoji     string `json:"emoji"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// QuoteRef references a quoted message by id with a small denormalized
// preview, instead of owning a copy of the quoted message. The full message
// is resolved lazily from the message store.
type QuoteRef struct {
	MessageID   string `json:"message_id"`
	SenderLabel string `json:"sender_label"`
	Snippet     string `json:"snippet"`
}

// Message is a decrypted chat message as held by the surrounding
// application.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Sender         string         `json:"sender"`
	Timestamp      int64          `json:"timestamp"`
	Content        MessageContent `json:"content"`
	Status         MessageStatus  `json:"status"`
	Quote          *QuoteRef      `json:"quote,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
}
