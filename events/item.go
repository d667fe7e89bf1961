package events

type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Content part types.
const (
	ContentInputText  = "input_text"
	ContentInputAudio = "input_audio"
	ContentText       = "text"
	ContentAudio      = "audio"
)

// Item is a conversation item as it travels over the wire.
type Item struct {
	ID        string    `json:"id,omitempty"`
	Object    string    `json:"object,omitempty"`
	Type      ItemType  `json:"type"`
	Status    string    `json:"status,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Content   []Content `json:"content,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Arguments string    `json:"arguments,omitempty"`
	Output    string    `json:"output,omitempty"`
}

type Content struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}
