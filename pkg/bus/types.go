package bus

// InboundMessage is one message received by a source adapter.
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
	// RequestID pairs the message with its reply.
	RequestID string `json:"request_id"`
	// Privileged marks the adapter's own account, which may run commands.
	Privileged bool              `json:"privileged,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply to one inbound message.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
	// Deliver is false when the reply should only be logged, not sent to the sender.
	Deliver  bool              `json:"deliver"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
