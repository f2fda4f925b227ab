package bus

// InboundMessage is one user message as delivered by a channel or the HTTP API.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	ChatName   string            `json:"chat_name,omitempty"`
	Content    string            `json:"content"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply sent back for an InboundMessage. Content is empty
// when no rule answered; Error then says why.
type OutboundMessage struct {
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	SessionKey string            `json:"session_key,omitempty"`
	Content    string            `json:"content"`
	RuleID     string            `json:"rule_id,omitempty"`
	RuleType   string            `json:"rule_type,omitempty"`
	Tier       string            `json:"tier,omitempty"`
	Anomalies  []string          `json:"anomalies,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
