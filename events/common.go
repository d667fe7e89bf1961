// Package events holds the wire representation of the realtime protocol: one
// struct per client or server event kind plus the session configuration.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

type Type string

// Client event types.
const (
	TypeSessionUpdate          Type = "session.update"
	TypeConversationItemCreate Type = "conversation.item.create"
	TypeResponseCreate         Type = "response.create"
	TypeResponseCancel         Type = "response.cancel"
	TypeInputAudioBufferAppend Type = "input_audio_buffer.append"
	TypeInputAudioBufferCommit Type = "input_audio_buffer.commit"
	TypeInputAudioBufferClear  Type = "input_audio_buffer.clear"
)

// Server event types.
const (
	TypeError                         Type = "error"
	TypeSessionCreated                Type = "session.created"
	TypeSessionUpdated                Type = "session.updated"
	TypeConversationItemCreated       Type = "conversation.item.created"
	TypeInputAudioBufferSpeechStarted Type = "input_audio_buffer.speech_started"
	TypeInputAudioBufferSpeechStopped Type = "input_audio_buffer.speech_stopped"
	TypeInputAudioBufferCommitted     Type = "input_audio_buffer.committed"
	TypeResponseCreated               Type = "response.created"
	TypeResponseDone                  Type = "response.done"
	TypeResponseOutputItemDone        Type = "response.output_item.done"
	TypeResponseTextDelta             Type = "response.text.delta"
	TypeResponseAudioDelta            Type = "response.audio.delta"
	TypeResponseAudioTranscriptDelta  Type = "response.audio_transcript.delta"
	TypeResponseFunctionCallArgsDelta Type = "response.function_call_arguments.delta"
)

type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    Type   `json:"type"`
}

// Base gives Send access to the envelope of any client event.
func (b *BaseEvent) Base() *BaseEvent { return b }

func NewBaseEvent(eventType Type) BaseEvent {
	return BaseEvent{
		EventID: NewEventID(),
		Type:    eventType,
	}
}

// NewEventID returns a unique event id made of the current unix millis and a
// random suffix.
func NewEventID() string {
	return fmt.Sprintf("evt_%d_%s", time.Now().UnixMilli(), nanoid.Must(8))
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
