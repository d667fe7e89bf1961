package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/emitter"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/metrics"
)

// handleFrame runs on the transport's processing goroutine, one frame at a
// time in arrival order.
func (c *Client) handleFrame(gen uint64, data []byte) {
	c.services.Metrics.RecordMessage(metrics.Received)

	evt, err := events.ParseServerEvent(data)
	if err != nil {
		c.services.Metrics.RecordError("protocol")
		c.logger.Error("failed to parse event", slog.Any("err", err))
		return
	}
	if !c.isGeneration(gen) {
		c.logger.Debug("dropping frame of closed connection", slog.String("type", string(evt.Type)))
		return
	}

	ctx := context.Background()
	if err := c.translate(ctx, gen, evt); err != nil {
		c.services.Metrics.RecordError("protocol")
		c.logger.Error("failed to handle event", slog.String("type", string(evt.Type)), slog.Any("err", err))
	}

	emitter.Emit(ctx, c.events, ServerEventTopic(evt.Type), evt)
	emitter.Emit(ctx, c.events, TopicServerEvent, evt)
}

func parse[T any](evt *events.ServerEvent) (*T, error) {
	v, err := events.Parse[T](evt.Raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", evt.Type, err)
	}
	return v, nil
}

func (c *Client) translate(ctx context.Context, gen uint64, evt *events.ServerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch evt.Type {
	case events.TypeSessionCreated:
		e, err := parse[events.SessionCreatedEvent](evt)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.sessionCreated = true
		c.sessionID = e.Session.ID
		c.mu.Unlock()
		emitter.Emit(ctx, c.events, TopicSessionCreated, e)

	case events.TypeConversationItemCreated:
		e, err := parse[events.ConversationItemCreatedEvent](evt)
		if err != nil {
			return err
		}
		it, ok := c.store.Add(e.Item)
		if !ok {
			c.logger.Warn("item rejected", slog.String("item_id", e.Item.ID))
			return nil
		}
		emitter.Emit(ctx, c.events, TopicConversationUpdated, &ConversationUpdated{Item: it})

	case events.TypeResponseAudioDelta:
		e, err := parse[events.ResponseAudioDeltaEvent](evt)
		if err != nil {
			return err
		}
		c.firstDelta()
		chunk := audio.DecodeBase64(e.Delta)
		c.services.Metrics.RecordAudioChunk()
		if c.playback != nil {
			c.playback.write(chunk)
		}
		c.updated(ctx, e.ItemID, c.store.AppendAudio(e.ItemID, chunk), &Delta{Audio: chunk})

	case events.TypeResponseTextDelta:
		e, err := parse[events.ResponseTextDeltaEvent](evt)
		if err != nil {
			return err
		}
		c.firstDelta()
		c.updated(ctx, e.ItemID, c.store.AppendText(e.ItemID, e.Delta), &Delta{Text: e.Delta})

	case events.TypeResponseAudioTranscriptDelta:
		e, err := parse[events.ResponseAudioTranscriptDeltaEvent](evt)
		if err != nil {
			return err
		}
		c.firstDelta()
		c.updated(ctx, e.ItemID, c.store.AppendTranscript(e.ItemID, e.Delta), &Delta{Transcript: e.Delta})

	case events.TypeResponseFunctionCallArgsDelta:
		e, err := parse[events.ResponseFunctionCallArgumentsDeltaEvent](evt)
		if err != nil {
			return err
		}
		c.firstDelta()
		ok := c.store.AppendArguments(e.ItemID, e.CallID, e.Delta)
		c.updated(ctx, e.ItemID, ok, &Delta{Arguments: e.Delta})

	case events.TypeInputAudioBufferSpeechStarted:
		e, err := parse[events.SpeechStartedEvent](evt)
		if err != nil {
			return err
		}
		if c.playback != nil {
			c.playback.Clear()
		}
		emitter.Emit(ctx, c.events, TopicInterrupted, e)

	case events.TypeResponseOutputItemDone:
		e, err := parse[events.ResponseOutputItemDoneEvent](evt)
		if err != nil {
			return err
		}
		c.itemDone(ctx, gen, e.Item)

	case events.TypeError:
		e, err := parse[events.ErrorEvent](evt)
		if err != nil {
			return err
		}
		kind := e.ErrorDetail.Code
		if kind == "" {
			kind = e.ErrorDetail.Type
		}
		c.services.Metrics.RecordError("realtime_api_" + kind)
		c.logger.Warn("service error", slog.Any("err", e))
		emitter.Emit(ctx, c.events, TopicError, e)
	}

	return nil
}

func (c *Client) updated(ctx context.Context, itemID string, ok bool, delta *Delta) {
	if !ok {
		c.logger.Warn("delta for unknown item", slog.String("item_id", itemID))
		return
	}
	it, ok := c.store.Get(itemID)
	if !ok {
		return
	}
	emitter.Emit(ctx, c.events, TopicConversationUpdated, &ConversationUpdated{Item: it, Delta: delta})
}

func (c *Client) itemDone(ctx context.Context, gen uint64, src events.Item) {
	// output items are normally announced first; register late ones so their
	// function calls still get an answer
	if _, ok := c.store.Get(src.ID); !ok {
		if _, ok := c.store.Add(src); !ok {
			c.logger.Warn("completed item rejected", slog.String("item_id", src.ID))
			return
		}
	} else if src.Type == events.ItemTypeFunctionCall && src.Arguments != "" {
		if it, _ := c.store.Get(src.ID); it.Formatted.Tool == nil || it.Formatted.Tool.Arguments == "" {
			c.store.AppendArguments(src.ID, src.CallID, src.Arguments)
		}
	}

	it, err := c.store.Complete(src.ID)
	if err != nil {
		c.logger.Warn("item not completed", slog.String("item_id", src.ID), slog.Any("err", err))
		return
	}
	emitter.Emit(ctx, c.events, TopicItemCompleted, &ItemCompleted{Item: it})

	if it.Type == events.ItemTypeFunctionCall {
		c.dispatch(gen, it)
	}
}

// firstDelta records the time from the last response request to the first
// streamed fragment.
func (c *Client) firstDelta() {
	c.respMu.Lock()
	since := c.responseSince
	c.responseSince = time.Time{}
	c.respMu.Unlock()

	if !since.IsZero() {
		c.services.Metrics.RecordResponseTime(time.Since(since))
	}
}
