package main

import (
	"context"
	"fmt"

	"github.com/yutakobayashidev/asobiba/pkg/chat"
)

// registerHandlers wires the default conversation flow: subscribe on
// mention, answer interactive elements, and stream model replies to
// subscribed conversations.
func registerHandlers(bot *chat.Bot) error {
	bot.OnMention(func(ctx context.Context, th *chat.Thread, ev *chat.Event) error {
		if err := th.Subscribe(ctx); err != nil {
			return err
		}
		return th.Post(ctx, welcomeCard())
	})

	if err := bot.OnAction("primary", func(ctx context.Context, th *chat.Thread, ev *chat.Event) error {
		return th.PostText(ctx, "You clicked the button!")
	}); err != nil {
		return err
	}

	if err := bot.OnAction("select-fruit", func(ctx context.Context, th *chat.Thread, ev *chat.Event) error {
		return th.PostText(ctx, fmt.Sprintf("You selected: %s", ev.Value))
	}); err != nil {
		return err
	}

	bot.OnSubscribedMessage(func(ctx context.Context, th *chat.Thread, ev *chat.Event) error {
		transcript, err := bot.Transcript(ctx, th, 0)
		if err != nil {
			return err
		}
		return bot.StreamReply(ctx, th, transcript)
	})

	return nil
}

func welcomeCard() chat.Content {
	return chat.Card{
		Title: "Welcome to my bot!",
		Children: []chat.Content{
			chat.TextBlock{Text: "Thanks for mentioning me. I'll reply to every message in this conversation from now on."},
			chat.Divider{},
			chat.Actions{
				Elements: []chat.Element{
					chat.Button{
						ID:    "primary",
						Label: "Click me",
						Style: "primary",
					},
					chat.Select{
						ID:    "select-fruit",
						Label: "Pick a fruit",
						Options: []chat.Option{
							{Label: "Apple", Value: "apple"},
							{Label: "Banana", Value: "banana"},
							{Label: "Orange", Value: "orange"},
						},
					},
				},
			},
		},
	}
}
