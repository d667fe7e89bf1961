package realtime

import (
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/emitter"
	"github.com/codewandler/realtime-go/events"
)

// Delta is the fragment that changed an item. At most one field is set.
type Delta struct {
	Audio      []byte
	Text       string
	Transcript string
	Arguments  string
}

// ConversationUpdated reports a new item (Delta nil) or a streamed fragment.
type ConversationUpdated struct {
	Item  conversation.Item
	Delta *Delta
}

type ItemCompleted struct {
	Item conversation.Item
}

var (
	TopicSessionCreated      = emitter.NewTopic[*events.SessionCreatedEvent]("session.created")
	TopicConversationUpdated = emitter.NewTopic[*ConversationUpdated]("conversation.updated")
	TopicItemCompleted       = emitter.NewTopic[*ItemCompleted]("conversation.item.completed")
	TopicInterrupted         = emitter.NewTopic[*events.SpeechStartedEvent]("conversation.interrupted")
	TopicError               = emitter.NewTopic[*events.ErrorEvent]("error")

	// TopicServerEvent sees every inbound frame, TopicClientEvent every
	// outbound event.
	TopicServerEvent = emitter.NewTopic[*events.ServerEvent]("server.*")
	TopicClientEvent = emitter.NewTopic[events.ClientEvent]("client.*")
)

// ServerEventTopic is the topic of inbound frames of one type.
func ServerEventTopic(t events.Type) emitter.Topic[*events.ServerEvent] {
	return emitter.NewTopic[*events.ServerEvent]("server." + string(t))
}

// ClientEventTopic is the topic of outbound events of one type.
func ClientEventTopic(t events.Type) emitter.Topic[events.ClientEvent] {
	return emitter.NewTopic[events.ClientEvent]("client." + string(t))
}

func (c *Client) OnSessionCreated(h emitter.Handler[*events.SessionCreatedEvent]) emitter.Handle {
	return emitter.On(c.events, TopicSessionCreated, h)
}

func (c *Client) OnConversationUpdated(h emitter.Handler[*ConversationUpdated]) emitter.Handle {
	return emitter.On(c.events, TopicConversationUpdated, h)
}

func (c *Client) OnItemCompleted(h emitter.Handler[*ItemCompleted]) emitter.Handle {
	return emitter.On(c.events, TopicItemCompleted, h)
}

func (c *Client) OnInterrupted(h emitter.Handler[*events.SpeechStartedEvent]) emitter.Handle {
	return emitter.On(c.events, TopicInterrupted, h)
}

func (c *Client) OnError(h emitter.Handler[*events.ErrorEvent]) emitter.Handle {
	return emitter.On(c.events, TopicError, h)
}

// OnServerEvent observes the raw inbound protocol stream.
func (c *Client) OnServerEvent(h emitter.Handler[*events.ServerEvent]) emitter.Handle {
	return emitter.On(c.events, TopicServerEvent, h)
}

// Events gives access to the emitter for custom topics and waiters.
func (c *Client) Events() *emitter.Emitter {
	return c.events
}
