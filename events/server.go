package events

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is the verbatim envelope of an inbound frame.
type ServerEvent struct {
	Type    Type            `json:"type"`
	EventID string          `json:"event_id"`
	Raw     json.RawMessage `json:"-"`
}

// ParseServerEvent reads the envelope of an inbound frame and keeps the frame.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	evt, err := Parse[ServerEvent](data)
	if err != nil {
		return nil, err
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("event without type")
	}
	evt.Raw = append(json.RawMessage(nil), data...)
	return evt, nil
}

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	PreviousItemID string `json:"previous_item_id"`
	Item           Item   `json:"item"`
}

// DeltaEvent covers the text, audio and transcript delta events which share
// one shape.
type DeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type (
	ResponseTextDeltaEvent            = DeltaEvent
	ResponseAudioDeltaEvent           = DeltaEvent
	ResponseAudioTranscriptDeltaEvent = DeltaEvent
)

type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Delta       string `json:"delta"`
}

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}
