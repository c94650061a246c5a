package chat

// Content is a node in the structured message tree handed to platform
// adapters for rendering. It is pure data: the core constructs and passes
// the tree, adapters translate it to Block Kit, inline keyboards, etc.
type Content interface{ isContent() }

// TextBlock is a markdown-flavoured text paragraph.
type TextBlock struct {
	Text string `json:"text"`
}

// Divider is a horizontal separator.
type Divider struct{}

// Card is a titled container of child nodes.
type Card struct {
	Title    string    `json:"title,omitempty"`
	Children []Content `json:"children"`
}

// Actions is a row of interactive elements.
type Actions struct {
	Elements []Element `json:"elements"`
}

func (TextBlock) isContent() {}
func (Divider) isContent()   {}
func (Card) isContent()      {}
func (Actions) isContent()   {}

// Element is an interactive control inside an Actions row. Its ID is the
// action identifier that correlates the control with a registered handler.
type Element interface{ isElement() }

// Button is a clickable button.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Style string `json:"style,omitempty"` // "primary", "danger" or empty
	Value string `json:"value,omitempty"`
}

// Select is a static menu of options.
type Select struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Options []Option `json:"options"`
}

// Option is one selectable entry of a Select.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func (Button) isElement() {}
func (Select) isElement() {}

// Text is shorthand for a single text block.
func Text(s string) Content { return TextBlock{Text: s} }
