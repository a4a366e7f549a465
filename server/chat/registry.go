package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/usecounsel/counsel/server/ai"
	"github.com/usecounsel/counsel/server/internal/errors"
)

// AuthSnapshot is the authentication state at the moment an operation runs.
// Registry operations take it as an explicit parameter instead of reading
// ambient global state, so transitions stay testable.
type AuthSnapshot struct {
	Authenticated bool
	// UserKey is the user UID scoping remote data. Empty when anonymous.
	UserKey string
}

// Backend derives the active backing store from the snapshot alone.
func (a AuthSnapshot) Backend() Backend {
	if a.Authenticated && a.UserKey != "" {
		return BackendRemote
	}
	return BackendLocal
}

// EntryState tags an in-memory message as pending or committed. The display
// layer renders both identically; the tag only drives reconciliation.
type EntryState string

const (
	EntryPending   EntryState = "PENDING"
	EntryCommitted EntryState = "COMMITTED"
)

// Entry is one message in the registry's in-memory view.
type Entry struct {
	State   EntryState
	Message *Message
}

// SendResult carries both persisted turns of a completed send.
type SendResult struct {
	UserMessage      *Message `json:"userMessage"`
	AssistantMessage *Message `json:"assistantMessage"`
}

// Registry presents a single consistent view of sessions and the active
// session's messages, routed to exactly one backing store chosen from the
// auth snapshot. A backend switch is a hard cutover: pending entries are
// dropped and both lists reload from the newly active store, never merged.
type Registry struct {
	mu sync.Mutex

	local     Service
	remote    Service
	completer ai.Completer

	migrator        *Migrator
	migrateOnSignIn bool

	activeBackend   Backend
	activeSessionID string
	currentSessions []*Session
	currentMessages []*Entry

	// cutovers counts backend switches so a send that raced a switch knows
	// its in-memory view is gone.
	cutovers uint64
	inFlight map[string]bool
}

// RegistryOption configures optional registry behavior.
type RegistryOption func(*Registry)

// WithMigrator installs the local-to-remote migration routine, optionally
// run automatically when the snapshot flips to authenticated.
func WithMigrator(m *Migrator, onSignIn bool) RegistryOption {
	return func(r *Registry) {
		r.migrator = m
		r.migrateOnSignIn = onSignIn
	}
}

func NewRegistry(local, remote Service, completer ai.Completer, opts ...RegistryOption) *Registry {
	r := &Registry{
		local:           local,
		remote:          remote,
		completer:       completer,
		activeBackend:   BackendLocal,
		currentSessions: []*Session{},
		currentMessages: []*Entry{},
		inFlight:        map[string]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) serviceFor(auth AuthSnapshot) Service {
	if auth.Backend() == BackendRemote {
		return r.remote
	}
	return r.local
}

// ActiveBackend reports which store currently backs the in-memory view.
func (r *Registry) ActiveBackend() Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeBackend
}

// ActiveSessionID reports the currently selected session, or empty.
func (r *Registry) ActiveSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeSessionID
}

// Sessions returns a copy of the current session list.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*Session, len(r.currentSessions))
	copy(list, r.currentSessions)
	return list
}

// Messages returns the active session's messages, pending and committed
// rendered alike.
func (r *Registry) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*Message, 0, len(r.currentMessages))
	for _, entry := range r.currentMessages {
		list = append(list, entry.Message)
	}
	return list
}

// ListSessions reloads and returns the session list from the store the
// snapshot selects.
func (r *Registry) ListSessions(ctx context.Context, auth AuthSnapshot) ([]*Session, error) {
	svc := r.serviceFor(auth)
	sessions, err := svc.ListSessions(ctx, auth.UserKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend == svc.Backend() {
		r.currentSessions = sessions
	}
	return sessions, nil
}

// CreateSession creates a session in the active store and prepends it to
// the in-memory list.
func (r *Registry) CreateSession(ctx context.Context, auth AuthSnapshot, title string) (*Session, error) {
	svc := r.serviceFor(auth)
	session, err := svc.CreateSession(ctx, auth.UserKey, title)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend == svc.Backend() {
		r.currentSessions = append([]*Session{session}, r.currentSessions...)
	}
	return session, nil
}

// SelectSession makes sessionID the active session and loads its messages.
func (r *Registry) SelectSession(ctx context.Context, auth AuthSnapshot, sessionID string) ([]*Message, error) {
	svc := r.serviceFor(auth)
	messages, err := svc.ListMessages(ctx, auth.UserKey, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSessionID = sessionID
	if r.activeBackend == svc.Backend() {
		r.currentMessages = committedEntries(messages)
	}
	return messages, nil
}

// RenameSession updates a session title in the active store and in the
// in-memory list.
func (r *Registry) RenameSession(ctx context.Context, auth AuthSnapshot, sessionID, title string) (*Session, error) {
	svc := r.serviceFor(auth)
	session, err := svc.RenameSession(ctx, auth.UserKey, sessionID, title)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend == svc.Backend() {
		for i, s := range r.currentSessions {
			if s.ID == sessionID {
				r.currentSessions[i] = session
				break
			}
		}
	}
	return session, nil
}

// DeleteSession removes a session, its messages cascading in the store. If
// the deleted session was active, the message view empties.
func (r *Registry) DeleteSession(ctx context.Context, auth AuthSnapshot, sessionID string) error {
	svc := r.serviceFor(auth)
	if err := svc.DeleteSession(ctx, auth.UserKey, sessionID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend == svc.Backend() {
		kept := r.currentSessions[:0]
		for _, s := range r.currentSessions {
			if s.ID != sessionID {
				kept = append(kept, s)
			}
		}
		r.currentSessions = kept
	}
	if r.activeSessionID == sessionID {
		r.activeSessionID = ""
		r.currentMessages = []*Entry{}
	}
	return nil
}

// SendMessage runs the optimistic send protocol against the store the
// snapshot selects:
//
//  1. Append a pending placeholder so the view reflects the action
//     immediately.
//  2. Persist the user message; swap the placeholder for the committed
//     message, or remove it entirely on failure.
//  3. Ask the completion service for a reply over the full history.
//  4. Persist and append the assistant reply.
//
// A failure after step 2 leaves the committed user message in place; only
// the assistant turn is lost. At most one send may be in flight per
// session.
func (r *Registry) SendMessage(ctx context.Context, auth AuthSnapshot, sessionID, content string) (*SendResult, error) {
	if content == "" {
		return nil, errors.InvalidArgument("content is required")
	}

	r.mu.Lock()
	if r.inFlight[sessionID] {
		r.mu.Unlock()
		return nil, errors.SendInFlight(sessionID)
	}
	r.inFlight[sessionID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, sessionID)
		r.mu.Unlock()
	}()

	svc := r.serviceFor(auth)

	placeholder := &Message{
		ID:        "temp-" + uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   content,
	}
	startCutovers := r.appendPending(svc.Backend(), sessionID, placeholder)

	userMessage, err := svc.AddMessage(ctx, auth.UserKey, sessionID, RoleUser, content)
	if err != nil {
		// The optimistic entry must never remain if persistence did not
		// happen.
		r.removeEntry(placeholder.ID)
		return nil, err
	}
	r.commitPending(startCutovers, svc.Backend(), placeholder.ID, userMessage)

	reply, err := r.complete(ctx, svc, auth, sessionID)
	if err != nil {
		return nil, err
	}

	assistantMessage, err := svc.AddMessage(ctx, auth.UserKey, sessionID, RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	r.appendCommitted(startCutovers, svc.Backend(), sessionID, assistantMessage)

	return &SendResult{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
}

// complete reads the persisted history back and asks the completion
// collaborator for the next assistant turn. The collaborator itself never
// errors; it answers failures with an in-band fallback reply.
func (r *Registry) complete(ctx context.Context, svc Service, auth AuthSnapshot, sessionID string) (string, error) {
	if r.completer == nil {
		return "", errors.CompletionUnavailable(nil)
	}

	history, err := svc.ListMessages(ctx, auth.UserKey, sessionID)
	if err != nil {
		return "", err
	}
	payload := make([]ai.Message, 0, len(history))
	for _, m := range history {
		payload = append(payload, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	return r.completer.Complete(ctx, payload), nil
}

// HandleAuthChange performs the hard cutover to the store the new snapshot
// selects: pending entries are discarded and both lists reload fresh. When
// configured, a sign-in first migrates local history into the remote
// store.
func (r *Registry) HandleAuthChange(ctx context.Context, auth AuthSnapshot) error {
	if auth.Backend() == BackendRemote && r.migrateOnSignIn && r.migrator != nil {
		if err := r.migrator.Run(ctx, auth.UserKey); err != nil {
			// Local data is intact after a failed migration; the sign-in
			// itself still proceeds.
			slog.Warn("sign-in migration failed, local history retained",
				slog.String("user_key", auth.UserKey),
				slog.String("error", err.Error()))
		}
	}
	return r.Reload(ctx, auth)
}

// Reload rebuilds the in-memory view from the store the snapshot selects.
// The previously selected session id is kept; if the new store has no such
// session the message view is simply empty, never a merge of old data.
func (r *Registry) Reload(ctx context.Context, auth AuthSnapshot) error {
	svc := r.serviceFor(auth)

	r.mu.Lock()
	r.activeBackend = svc.Backend()
	r.cutovers++
	r.currentSessions = []*Session{}
	r.currentMessages = []*Entry{}
	selected := r.activeSessionID
	r.mu.Unlock()

	sessions, err := svc.ListSessions(ctx, auth.UserKey)
	if err != nil {
		return err
	}

	var messages []*Message
	if selected != "" {
		messages, err = svc.ListMessages(ctx, auth.UserKey, selected)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeNotFound) {
				messages = []*Message{}
			} else {
				return err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend != svc.Backend() {
		// Another cutover won the race; its reload is authoritative.
		return nil
	}
	r.currentSessions = sessions
	r.currentMessages = committedEntries(messages)
	return nil
}

func (r *Registry) appendPending(backend Backend, sessionID string, placeholder *Message) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeBackend == backend && r.activeSessionID == sessionID {
		r.currentMessages = append(r.currentMessages, &Entry{State: EntryPending, Message: placeholder})
	}
	return r.cutovers
}

// commitPending swaps the placeholder for the persisted message. After a
// cutover the placeholder is gone and the committed message must not
// reappear in a view now backed by a different store.
func (r *Registry) commitPending(startCutovers uint64, backend Backend, tempID string, committed *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cutovers != startCutovers || r.activeBackend != backend {
		return
	}
	for _, entry := range r.currentMessages {
		if entry.Message.ID == tempID {
			entry.State = EntryCommitted
			entry.Message = committed
			return
		}
	}
}

func (r *Registry) appendCommitted(startCutovers uint64, backend Backend, sessionID string, message *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cutovers != startCutovers || r.activeBackend != backend || r.activeSessionID != sessionID {
		return
	}
	r.currentMessages = append(r.currentMessages, &Entry{State: EntryCommitted, Message: message})
}

func (r *Registry) removeEntry(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.currentMessages[:0]
	for _, entry := range r.currentMessages {
		if entry.Message.ID != id {
			kept = append(kept, entry)
		}
	}
	r.currentMessages = kept
}

func committedEntries(messages []*Message) []*Entry {
	entries := make([]*Entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, &Entry{State: EntryCommitted, Message: m})
	}
	return entries
}
