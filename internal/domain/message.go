package domain

// Message fully formatted notification.
type Message struct {
	Text      string
	ParseMode string
	PhotoURL  string
}

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)
