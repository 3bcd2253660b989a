package model

const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeHeroCard     = "application/vnd.microsoft.card.hero"
)

// Attachment is structured content delivered next to a text reply. Content is
// marshaled to JSON by the transport as-is.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}
