package chat

import (
	"context"
	"fmt"

	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

// StreamReply invokes the generation service once with the transcript and
// relays produced increments to the conversation as they arrive. Delivery is
// strictly in generation order with one increment in flight; increments
// already delivered stay delivered no matter how the stream ends.
//
// The pipeline stops consuming and releases the generation stream when the
// conversation is unsubscribed mid-stream or a delivery fails.
func (b *Bot) StreamReply(ctx context.Context, th *Thread, transcript []TranscriptEntry) error {
	adapter, ok := b.Adapter(th.Platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, th.Platform)
	}

	stream, err := b.generator.StreamChat(ctx, transcript)
	if err != nil {
		logger.ErrorCF("stream", "Generation start failed", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID, "error": err.Error(),
		})
		b.publish("stream.failed", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID, "stage": "start", "error": err.Error(),
		})
		return fmt.Errorf("start generation: %w", err)
	}
	defer stream.Close()

	writer, err := adapter.OpenStream(ctx, th.ID)
	if err != nil {
		logger.ErrorCF("stream", "Open delivery stream failed", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID, "error": err.Error(),
		})
		return fmt.Errorf("open stream to %s/%s: %w", th.Platform, th.ID, err)
	}

	b.publish("stream.started", map[string]interface{}{
		"platform": th.Platform, "conversation": th.ID,
	})

	delivered := 0
	for stream.Next() {
		subscribed, serr := b.store.IsSubscribed(ctx, th.Platform, th.ID)
		if serr != nil {
			logger.ErrorCF("stream", "Subscription read failed mid-stream", map[string]interface{}{
				"platform": th.Platform, "conversation": th.ID, "error": serr.Error(),
			})
			return fmt.Errorf("subscription read mid-stream: %w", serr)
		}
		if !subscribed {
			// Delivery target is gone; stop consuming so no generation
			// continues past this point.
			logger.InfoCF("stream", "Conversation unsubscribed mid-stream, stopping", map[string]interface{}{
				"platform": th.Platform, "conversation": th.ID, "delivered": delivered,
			})
			b.publish("stream.cancelled", map[string]interface{}{
				"platform": th.Platform, "conversation": th.ID, "delivered": delivered,
			})
			return nil
		}

		if werr := writer.Write(ctx, stream.Current()); werr != nil {
			logger.ErrorCF("stream", "Chunk delivery failed", map[string]interface{}{
				"platform": th.Platform, "conversation": th.ID,
				"delivered": delivered, "error": werr.Error(),
			})
			b.publish("stream.failed", map[string]interface{}{
				"platform": th.Platform, "conversation": th.ID, "stage": "delivery", "error": werr.Error(),
			})
			return fmt.Errorf("deliver chunk: %w", werr)
		}
		delivered++
	}

	if err := stream.Err(); err != nil {
		// Mid-stream generation failure: already-delivered increments stay.
		logger.ErrorCF("stream", "Generation failed mid-stream", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID,
			"delivered": delivered, "error": err.Error(),
		})
		b.publish("stream.failed", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID, "stage": "generation", "error": err.Error(),
		})
		return fmt.Errorf("generation: %w", err)
	}

	if err := writer.Close(ctx); err != nil {
		logger.WarnCF("stream", "Finalize delivery failed", map[string]interface{}{
			"platform": th.Platform, "conversation": th.ID, "error": err.Error(),
		})
	}

	b.publish("stream.completed", map[string]interface{}{
		"platform": th.Platform, "conversation": th.ID, "chunks": delivered,
	})
	return nil
}
