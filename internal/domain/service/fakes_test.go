package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopehouse/reminders/internal/domain/entity"
	"github.com/hopehouse/reminders/pkg/mailer"
)

// memReminders mirrors the conditional updates of the gorm storage.
type memReminders struct {
	mu   sync.Mutex
	rows map[string]*entity.Reminder

	errFindDue  error
	errClaim    error
	errComplete error
	// cancelNeedsLiveCtx fails Cancel when its context is already done.
	cancelNeedsLiveCtx bool
	// beforeFindDue runs after the due snapshot is taken, before it is returned.
	beforeFindDue func()
	// raceOnCreate inserts a competing row before reporting a duplicate key.
	raceOnCreate bool
}

func newMemReminders() *memReminders {
	return &memReminders{rows: make(map[string]*entity.Reminder)}
}

func sameRegistration(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memReminders) insert(r *entity.Reminder) error {
	for _, row := range m.rows {
		if row.Status == entity.ReminderStatusPending && row.EventID == r.EventID &&
			row.OffsetLabel == r.OffsetLabel && sameRegistration(row.RegistrationID, r.RegistrationID) {
			return gorm.ErrDuplicatedKey
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = entity.ReminderStatusPending
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memReminders) Create(_ context.Context, r *entity.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceOnCreate {
		m.raceOnCreate = false
		competing := *r
		competing.ID = ""
		if err := m.insert(&competing); err != nil {
			return err
		}
	}
	return m.insert(r)
}

func (m *memReminders) FindPending(_ context.Context, eventID string, registrationID *string, offset entity.ReminderOffset) (*entity.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Status == entity.ReminderStatusPending && row.EventID == eventID &&
			row.OffsetLabel == offset && sameRegistration(row.RegistrationID, registrationID) {
			cp := *row
			return &cp, nil
		}
	}
	return &entity.Reminder{}, gorm.ErrRecordNotFound
}

func (m *memReminders) CancelPending(_ context.Context, eventID string, registrationID *string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.EventID != eventID || row.Status != entity.ReminderStatusPending {
			continue
		}
		if registrationID != nil && !sameRegistration(row.RegistrationID, registrationID) {
			continue
		}
		row.Status = entity.ReminderStatusCancelled
		n++
	}
	return n, nil
}

func (m *memReminders) Stats(_ context.Context) (map[entity.ReminderStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[entity.ReminderStatus]int64)
	for _, row := range m.rows {
		stats[row.Status]++
	}
	return stats, nil
}

func (m *memReminders) FindDue(_ context.Context, now time.Time) ([]entity.Reminder, error) {
	m.mu.Lock()
	if m.errFindDue != nil {
		m.mu.Unlock()
		return nil, m.errFindDue
	}
	var due []entity.Reminder
	for _, row := range m.rows {
		if row.IsDue(now) {
			due = append(due, *row)
		}
	}
	hook := m.beforeFindDue
	m.beforeFindDue = nil
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if hook != nil {
		hook()
	}
	return due, nil
}

func (m *memReminders) Claim(_ context.Context, id, token string, attempts int, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errClaim != nil {
		return false, m.errClaim
	}
	row, ok := m.rows[id]
	if !ok || row.Status != entity.ReminderStatusPending || row.AttemptCount != attempts {
		return false, nil
	}
	if row.ClaimedUntil != nil && row.ClaimedUntil.After(now) {
		return false, nil
	}
	row.ClaimToken = &token
	row.ClaimedUntil = &until
	return true, nil
}

func (m *memReminders) Complete(_ context.Context, id, token string, t entity.ReminderTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errComplete != nil {
		return false, m.errComplete
	}
	if err := t.Validate(); err != nil {
		return false, err
	}
	row, ok := m.rows[id]
	if !ok || row.Status != entity.ReminderStatusPending || row.ClaimToken == nil || *row.ClaimToken != token {
		return false, nil
	}
	at := t.LastAttemptAt
	row.Status = t.Status
	if t.FailedAttempt {
		row.AttemptCount++
	}
	row.LastAttemptAt = &at
	row.LastError = t.LastError
	row.ClaimToken = nil
	row.ClaimedUntil = nil
	return true, nil
}

func (m *memReminders) Cancel(ctx context.Context, id, token string, _ time.Time) (bool, error) {
	if m.cancelNeedsLiveCtx && ctx.Err() != nil {
		return false, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != entity.ReminderStatusPending || row.ClaimToken == nil || *row.ClaimToken != token {
		return false, nil
	}
	row.Status = entity.ReminderStatusCancelled
	row.ClaimToken = nil
	row.ClaimedUntil = nil
	return true, nil
}

func (m *memReminders) get(id string) entity.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memReminders) all() []entity.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Reminder, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, *row)
	}
	return out
}

type memEvents struct {
	events map[string]*entity.Event
	err    error
	onGet  func()
}

func (m *memEvents) Get(_ context.Context, id string) (*entity.Event, error) {
	if m.onGet != nil {
		m.onGet()
	}
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.events[id]
	if !ok {
		return &entity.Event{}, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

type memRegistrations struct {
	registrations map[string]*entity.Registration
	err           error
}

func (m *memRegistrations) Get(_ context.Context, id string) (*entity.Registration, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.registrations[id]
	if !ok {
		return &entity.Registration{}, gorm.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRegistrations) GetByEventID(_ context.Context, eventID string) ([]entity.Registration, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []entity.Registration
	for _, r := range m.registrations {
		if r.EventID == eventID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeMailer records sent e-mails. send, when set, decides each attempt.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Email
	send func(ctx context.Context, e mailer.Email) error
}

func (f *fakeMailer) Send(ctx context.Context, e mailer.Email) error {
	if f.send != nil {
		if err := f.send(ctx, e); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var errSMTP = errors.New("535 authentication failed")
