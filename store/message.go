package store

// MessageRole is a persisted message role. The system role used in
// completion request payloads is transient and never stored.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
)

type Message struct {
	ID  int32
	UID string

	SessionID int32
	Role      MessageRole
	Content   string
	CreatedTs int64
}

type FindMessage struct {
	ID        *int32
	UID       *string
	SessionID *int32
}

type DeleteMessage struct {
	ID        *int32
	SessionID *int32
}
