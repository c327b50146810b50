package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/reviewgen/internal/database"
)

// StatusQueued and StatusFailed are the two statuses the dashboard sets
// itself; every other status comes from the provider.
const (
	StatusQueued = "Queued"
	StatusFailed = "failed"
)

// maxLogEntries bounds how many image entries List returns.
const maxLogEntries = 100

// ImageEntry is one row of the image submission log.
type ImageEntry struct {
	ID            string    `json:"id"`
	ProviderJobID string    `json:"providerJobId,omitempty"`
	Prompt        string    `json:"prompt"`
	AspectRatio   string    `json:"aspectRatio"`
	Status        string    `json:"status"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ImageLog stores image entries. List returns newest first.
type ImageLog interface {
	Add(e ImageEntry) error
	Update(e ImageEntry) error
	List() ([]ImageEntry, error)
}

// MemoryLog is an in-process ImageLog, safe for concurrent use.
type MemoryLog struct {
	mu      sync.Mutex
	entries []ImageEntry
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Add(e ImageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]ImageEntry{e}, m.entries...)
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[:maxLogEntries]
	}
	return nil
}

func (m *MemoryLog) Update(e ImageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == e.ID {
			m.entries[i] = e
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *MemoryLog) List() ([]ImageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ImageEntry(nil), m.entries...), nil
}

// DBLog persists the image log in the history database.
type DBLog struct {
	db *database.DB
}

func NewDBLog(db *database.DB) *DBLog { return &DBLog{db: db} }

func (l *DBLog) Add(e ImageEntry) error {
	_, err := l.db.InsertImageJob(toRow(e))
	return err
}

func (l *DBLog) Update(e ImageEntry) error {
	return l.db.UpdateImageJob(toRow(e))
}

func (l *DBLog) List() ([]ImageEntry, error) {
	rows, err := l.db.GetImageJobs(maxLogEntries)
	if err != nil {
		return nil, err
	}
	out := make([]ImageEntry, len(rows))
	for i, r := range rows {
		out[i] = ImageEntry{
			ID:            r.ID,
			ProviderJobID: deref(r.ProviderJobID),
			Prompt:        r.Prompt,
			AspectRatio:   r.AspectRatio,
			Status:        r.Status,
			ImageURL:      deref(r.ImageURL),
			Error:         deref(r.Error),
		}
		if r.CreatedAt != nil {
			out[i].CreatedAt, _ = time.Parse(time.DateTime, *r.CreatedAt)
		}
	}
	return out, nil
}

func newEntry(prompt, aspectRatio string) ImageEntry {
	return ImageEntry{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

func toRow(e ImageEntry) database.ImageJob {
	return database.ImageJob{
		ID:            e.ID,
		ProviderJobID: nilIfEmpty(e.ProviderJobID),
		Prompt:        e.Prompt,
		AspectRatio:   e.AspectRatio,
		Status:        e.Status,
		ImageURL:      nilIfEmpty(e.ImageURL),
		Error:         nilIfEmpty(e.Error),
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
