package speech

import (
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/lingua-lessons/internal/domain"
)

// PendingStatus tracks an optimistic message through its turn.
type PendingStatus string

const (
	PendingSent      PendingStatus = "pending"
	PendingConfirmed PendingStatus = "confirmed"
	PendingFailed    PendingStatus = "failed"
)

// PendingMessage is a user message shown before the server has stored it.
type PendingMessage struct {
	LocalID   string
	Content   string
	CreatedAt time.Time
	Status    PendingStatus
	Err       error
}

// Overlay holds optimistic user messages on top of the persisted
// transcript. The persisted list is never modified; Merge builds the view.
type Overlay struct {
	mu      sync.Mutex
	seq     int
	entries []PendingMessage
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Add stages content and returns its local id.
func (o *Overlay) Add(content string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	id := "local-" + strconv.Itoa(o.seq)
	o.entries = append(o.entries, PendingMessage{
		LocalID:   id,
		Content:   content,
		CreatedAt: time.Now(),
		Status:    PendingSent,
	})
	return id
}

// Confirm marks the entry as stored by the server.
func (o *Overlay) Confirm(localID string) bool {
	return o.set(localID, PendingConfirmed, nil)
}

// Fail marks the entry as rejected. The caller may offer its content for
// resubmission.
func (o *Overlay) Fail(localID string, err error) bool {
	return o.set(localID, PendingFailed, err)
}

func (o *Overlay) set(localID string, status PendingStatus, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.entries {
		if o.entries[i].LocalID == localID && o.entries[i].Status == PendingSent {
			o.entries[i].Status = status
			o.entries[i].Err = err
			return true
		}
	}
	return false
}

// Pending returns the entries still awaiting a result.
func (o *Overlay) Pending() []PendingMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []PendingMessage
	for _, e := range o.entries {
		if e.Status == PendingSent {
			out = append(out, e)
		}
	}
	return out
}

// Merge returns persisted followed by still-pending entries as user
// messages. Confirmed and failed entries are dropped from the overlay.
func (o *Overlay) Merge(persisted []domain.Message) []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	view := make([]domain.Message, 0, len(persisted)+len(o.entries))
	view = append(view, persisted...)

	kept := o.entries[:0]
	for _, e := range o.entries {
		if e.Status != PendingSent {
			continue
		}
		kept = append(kept, e)
		view = append(view, domain.Message{
			ID:        e.LocalID,
			Role:      domain.RoleUser,
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	o.entries = kept
	return view
}
