package events

// ClientEvent is any event the client sends to the service.
type ClientEvent interface {
	Base() *BaseEvent
}

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(session SessionConfig) *SessionUpdateEvent {
	return &SessionUpdateEvent{BaseEvent: NewBaseEvent(TypeSessionUpdate), Session: session}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

func NewConversationItemCreate(item Item) *ConversationItemCreateEvent {
	return &ConversationItemCreateEvent{BaseEvent: NewBaseEvent(TypeConversationItemCreate), Item: item}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	ToolChoice        string      `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

func NewResponseCreate() *ResponseCreateEvent {
	return &ResponseCreateEvent{BaseEvent: NewBaseEvent(TypeResponseCreate)}
}

type ResponseCancelEvent struct {
	BaseEvent
}

func NewResponseCancel() *ResponseCancelEvent {
	return &ResponseCancelEvent{BaseEvent: NewBaseEvent(TypeResponseCancel)}
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppend(audioBase64 string) *InputAudioBufferAppendEvent {
	return &InputAudioBufferAppendEvent{BaseEvent: NewBaseEvent(TypeInputAudioBufferAppend), Audio: audioBase64}
}

type InputAudioBufferCommitEvent struct {
	BaseEvent
}

func NewInputAudioBufferCommit() *InputAudioBufferCommitEvent {
	return &InputAudioBufferCommitEvent{BaseEvent: NewBaseEvent(TypeInputAudioBufferCommit)}
}
