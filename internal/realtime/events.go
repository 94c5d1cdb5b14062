package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"merrygit_go/internal/domain"
)

// EventName identifies a realtime event on the wire.
type EventName string

// Server -> client.
const (
	EventMessageReceive EventName = "message:receive"
	EventTypingStart    EventName = "typing:start"
	EventTypingStop     EventName = "typing:stop"
	EventUserOnline     EventName = "user:online"
	EventUserOffline    EventName = "user:offline"
	EventUserViewing    EventName = "user:viewing"
	EventUserNotViewing EventName = "user:not-viewing"
	EventChatUpdated    EventName = "chat:updated"
	EventError          EventName = "error"
)

// Client -> server. typing:start and typing:stop are shared with the inbound set.
const (
	EventMessageSend    EventName = "message:send"
	EventChatJoin       EventName = "chat:join"
	EventChatLeave      EventName = "chat:leave"
	EventMessageRead    EventName = "message:read"
	EventChatViewing    EventName = "chat:viewing"
	EventChatNotViewing EventName = "chat:not-viewing"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed event payload")
)

// envelope is the frame layout shared by both directions.
type envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundEvent is the closed set of events the server may push.
type InboundEvent interface {
	EventName() EventName
	validate() error
}

type MessageReceived struct {
	ChatID  string         `json:"chatId"`
	Message domain.Message `json:"message"`
}

type TypingStarted struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type TypingStopped struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type UserOnline struct {
	UserID string `json:"userId"`
}

type UserOffline struct {
	UserID string `json:"userId"`
}

type UserViewing struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type UserNotViewing struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type ChatUpdated struct {
	ChatID string `json:"chatId"`
}

type ServerError struct {
	Message string `json:"message"`
}

func (MessageReceived) EventName() EventName { return EventMessageReceive }
func (TypingStarted) EventName() EventName   { return EventTypingStart }
func (TypingStopped) EventName() EventName   { return EventTypingStop }
func (UserOnline) EventName() EventName      { return EventUserOnline }
func (UserOffline) EventName() EventName     { return EventUserOffline }
func (UserViewing) EventName() EventName     { return EventUserViewing }
func (UserNotViewing) EventName() EventName  { return EventUserNotViewing }
func (ChatUpdated) EventName() EventName     { return EventChatUpdated }
func (ServerError) EventName() EventName     { return EventError }

func (e MessageReceived) validate() error { return requireFields(e.ChatID, "chatId", e.Message.ID, "message.id") }
func (e TypingStarted) validate() error   { return requireFields(e.ChatID, "chatId", e.UserID, "userId") }
func (e TypingStopped) validate() error   { return requireFields(e.ChatID, "chatId", e.UserID, "userId") }
func (e UserOnline) validate() error      { return requireFields(e.UserID, "userId") }
func (e UserOffline) validate() error     { return requireFields(e.UserID, "userId") }
func (e UserViewing) validate() error     { return requireFields(e.UserID, "userId", e.ChatID, "chatId") }
func (e UserNotViewing) validate() error  { return requireFields(e.UserID, "userId", e.ChatID, "chatId") }
func (e ChatUpdated) validate() error     { return requireFields(e.ChatID, "chatId") }
func (ServerError) validate() error       { return nil }

// requireFields takes value/name pairs and fails on the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == "" {
			return fmt.Errorf("%w: missing %s", ErrMalformedPayload, pairs[i+1])
		}
	}
	return nil
}

// OutboundEvent is the closed set of events the client may send.
type OutboundEvent interface {
	EventName() EventName
	outbound()
}

type SendMessage struct {
	ChatID  string         `json:"chatId"`
	Message domain.Message `json:"message"`
}

type StartTyping struct {
	ChatID string `json:"chatId"`
}

type StopTyping struct {
	ChatID string `json:"chatId"`
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type ReadMessage struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type ViewChat struct {
	ChatID string `json:"chatId"`
}

type StopViewingChat struct {
	ChatID string `json:"chatId"`
}

func (SendMessage) EventName() EventName     { return EventMessageSend }
func (StartTyping) EventName() EventName     { return EventTypingStart }
func (StopTyping) EventName() EventName      { return EventTypingStop }
func (JoinChat) EventName() EventName        { return EventChatJoin }
func (LeaveChat) EventName() EventName       { return EventChatLeave }
func (ReadMessage) EventName() EventName     { return EventMessageRead }
func (ViewChat) EventName() EventName        { return EventChatViewing }
func (StopViewingChat) EventName() EventName { return EventChatNotViewing }

func (SendMessage) outbound()     {}
func (StartTyping) outbound()     {}
func (StopTyping) outbound()      {}
func (JoinChat) outbound()        {}
func (LeaveChat) outbound()       {}
func (ReadMessage) outbound()     {}
func (ViewChat) outbound()        {}
func (StopViewingChat) outbound() {}

// DecodeInbound parses a frame into its typed event.
func DecodeInbound(frame []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch env.Event {
	case EventMessageReceive:
		return decodeAs[MessageReceived](env.Data)
	case EventTypingStart:
		return decodeAs[TypingStarted](env.Data)
	case EventTypingStop:
		return decodeAs[TypingStopped](env.Data)
	case EventUserOnline:
		return decodeAs[UserOnline](env.Data)
	case EventUserOffline:
		return decodeAs[UserOffline](env.Data)
	case EventUserViewing:
		return decodeAs[UserViewing](env.Data)
	case EventUserNotViewing:
		return decodeAs[UserNotViewing](env.Data)
	case EventChatUpdated:
		return decodeAs[ChatUpdated](env.Data)
	case EventError:
		return decodeAs[ServerError](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeAs[T InboundEvent](data json.RawMessage) (InboundEvent, error) {
	var ev T
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EncodeOutbound renders an outbound event as a wire frame.
func EncodeOutbound(ev OutboundEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: ev.EventName(), Data: data})
}
