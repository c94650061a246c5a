package slack

import (
	"github.com/slack-go/slack"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
)

// renderContent translates the core's structured content tree into Block
// Kit blocks. Unknown nodes render as nothing rather than failing delivery.
func renderContent(content chat.Content) []slack.Block {
	switch node := content.(type) {
	case chat.Card:
		blocks := make([]slack.Block, 0, len(node.Children)+1)
		if node.Title != "" {
			blocks = append(blocks, slack.NewHeaderBlock(
				slack.NewTextBlockObject(slack.PlainTextType, node.Title, true, false)))
		}
		for _, child := range node.Children {
			blocks = append(blocks, renderContent(child)...)
		}
		return blocks

	case chat.TextBlock:
		return []slack.Block{slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, node.Text, false, false), nil, nil)}

	case chat.Divider:
		return []slack.Block{slack.NewDividerBlock()}

	case chat.Actions:
		elements := make([]slack.BlockElement, 0, len(node.Elements))
		for _, el := range node.Elements {
			if rendered := renderElement(el); rendered != nil {
				elements = append(elements, rendered)
			}
		}
		if len(elements) == 0 {
			return nil
		}
		return []slack.Block{slack.NewActionBlock("", elements...)}

	default:
		return nil
	}
}

func renderElement(element chat.Element) slack.BlockElement {
	switch el := element.(type) {
	case chat.Button:
		button := slack.NewButtonBlockElement(el.ID, el.Value,
			slack.NewTextBlockObject(slack.PlainTextType, el.Label, true, false))
		switch el.Style {
		case "primary":
			button = button.WithStyle(slack.StylePrimary)
		case "danger":
			button = button.WithStyle(slack.StyleDanger)
		}
		return button

	case chat.Select:
		options := make([]*slack.OptionBlockObject, 0, len(el.Options))
		for _, opt := range el.Options {
			options = append(options, slack.NewOptionBlockObject(opt.Value,
				slack.NewTextBlockObject(slack.PlainTextType, opt.Label, true, false), nil))
		}
		return slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
			slack.NewTextBlockObject(slack.PlainTextType, el.Label, true, false),
			el.ID, options...)

	default:
		return nil
	}
}
