package telegram

import (
	"strings"

	"github.com/mymmrac/telego"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
)

// renderContent flattens the structured content tree into message text plus
// an inline keyboard. Telegram has no card container, so the card title
// becomes a bold first line and a divider becomes a rule of dashes.
func renderContent(content chat.Content) (string, *telego.InlineKeyboardMarkup) {
	var text strings.Builder
	var rows [][]telego.InlineKeyboardButton

	walk(content, &text, &rows)

	if len(rows) == 0 {
		return strings.TrimRight(text.String(), "\n"), nil
	}
	return strings.TrimRight(text.String(), "\n"), &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func walk(content chat.Content, text *strings.Builder, rows *[][]telego.InlineKeyboardButton) {
	switch node := content.(type) {
	case chat.Card:
		if node.Title != "" {
			text.WriteString("*" + node.Title + "*\n")
		}
		for _, child := range node.Children {
			walk(child, text, rows)
		}

	case chat.TextBlock:
		text.WriteString(node.Text + "\n")

	case chat.Divider:
		text.WriteString("———\n")

	case chat.Actions:
		for _, element := range node.Elements {
			if row := renderRow(element); len(row) > 0 {
				*rows = append(*rows, row)
			}
		}
	}
}

// renderRow turns one interactive element into a keyboard row. A select
// becomes one button per option; callback data carries "actionID|value" so
// the parse side can recover both.
func renderRow(element chat.Element) []telego.InlineKeyboardButton {
	switch el := element.(type) {
	case chat.Button:
		return []telego.InlineKeyboardButton{{Text: el.Label, CallbackData: el.ID}}

	case chat.Select:
		row := make([]telego.InlineKeyboardButton, 0, len(el.Options))
		for _, opt := range el.Options {
			row = append(row, telego.InlineKeyboardButton{
				Text:         opt.Label,
				CallbackData: el.ID + "|" + opt.Value,
			})
		}
		return row

	default:
		return nil
	}
}
