package action

import "encoding/json"

// Channel identifies an outbound social channel.
type Channel string

const (
	ChannelX        Channel = "x"
	ChannelMoltbook Channel = "moltbook"
)

var knownChannels = map[Channel]struct{}{
	ChannelX:        {},
	ChannelMoltbook: {},
}

// Known reports whether the channel is one the engager can route to.
func (c Channel) Known() bool {
	_, ok := knownChannels[c]
	return ok
}

// Channels returns the routable channels in a stable order.
func Channels() []Channel {
	return []Channel{ChannelX, ChannelMoltbook}
}

// Type identifies what kind of engagement an action performs.
type Type string

const (
	TypePost  Type = "post"
	TypeReply Type = "reply"
)

// Valid reports whether the action type is supported.
func (t Type) Valid() bool {
	return t == TypePost || t == TypeReply
}

// Metadata carries the known optional tags attached to an action.
type Metadata struct {
	Kind        string `json:"kind,omitempty"`
	IntentLabel string `json:"intent_label,omitempty"`
	SearchLabel string `json:"search_label,omitempty"`
	AuthorID    string `json:"author_id,omitempty"`
}

// Action is a candidate engagement produced by the planner. Once accepted into
// the queue it doubles as the job document; Receipt and ExecutedUnix are set on
// successful execution. ID is the idempotency key: the queue stores at most one
// job file per ID.
type Action struct {
	ID          string   `json:"action_id"`
	Channel     Channel  `json:"channel"`
	Type        Type     `json:"type"`
	Text        string   `json:"text"`
	InReplyTo   string   `json:"in_reply_to,omitempty"`
	Metadata    Metadata `json:"metadata"`
	CreatedUnix int64    `json:"created_unix,omitempty"`

	Receipt      json.RawMessage `json:"receipt,omitempty"`
	ExecutedUnix int64           `json:"executed_unix,omitempty"`
}
