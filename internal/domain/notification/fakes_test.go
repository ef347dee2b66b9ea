package notification

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"herald/internal/common"
)

// memStore is an in-memory Store used across the package tests.
type memStore struct {
	mu            sync.Mutex
	notifications map[string]*Notification
	audits        []*StatusChange
	createErr     error
}

func newMemStore() *memStore {
	return &memStore{notifications: make(map[string]*Notification)}
}

func (m *memStore) Create(ctx context.Context, n *Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (m *memStore) ApplyTransition(ctx context.Context, n *Notification, change *StatusChange) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.notifications[n.ID]
	if !ok || current.Status != change.FromStatus {
		return false, nil
	}
	cp := *n
	m.notifications[n.ID] = &cp
	m.audits = append(m.audits, change)
	return true, nil
}

func (m *memStore) AppendAudit(ctx context.Context, change *StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, change)
	return nil
}

func (m *memStore) ListAudit(ctx context.Context, notificationID string) ([]*StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*StatusChange
	for _, c := range m.audits {
		if c.NotificationID == notificationID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) List(ctx context.Context, filter ListFilter) ([]*Notification, int, error) {
	all, _ := m.ListAll(ctx)
	return all, len(all), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.notifications {
		if n.Status == StatusPending && n.UpdatedAt.Before(olderThan) && len(out) < limit {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

func (m *memStore) auditCount(id string) int {
	changes, _ := m.ListAudit(context.Background(), id)
	return len(changes)
}

// fakeProvider replays a scripted sequence of send outcomes.
type fakeProvider struct {
	channel Channel
	errs    []error // one entry per call; nil means success
	calls   int
	lastMsg *Message
	onSend  func() // invoked at the start of every Send
}

func (f *fakeProvider) Send(ctx context.Context, msg *Message) (*DeliveryOutcome, error) {
	call := f.calls
	f.calls++
	f.lastMsg = msg
	if f.onSend != nil {
		f.onSend()
	}
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	return &DeliveryOutcome{ProviderMessageID: fmt.Sprintf("msg-%d", call+1)}, nil
}

func (f *fakeProvider) Channel() Channel { return f.channel }

// fakeEnqueuer records enqueued ids.
type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueDispatch(id string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

// fakeLimiter returns a fixed allow/deny decision.
type fakeLimiter struct {
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	return f.allowed, f.err
}

// fakeResolver serves templates from a map.
type fakeResolver struct {
	templates map[string]*Template
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (*Template, error) {
	if t, ok := f.templates[id]; ok {
		return t, nil
	}
	return nil, common.NewNotFoundError("template", id)
}

var fakeVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// fakeRenderer substitutes flat {{key}} placeholders from string values,
// reporting misses as warnings. Enough fidelity for service-level tests.
type fakeRenderer struct{}

func (fakeRenderer) Render(subjectPattern, bodyPattern string, data map[string]any) (string, string, []string) {
	var warnings []string
	sub := func(pattern string) string {
		return fakeVarRe.ReplaceAllStringFunc(pattern, func(match string) string {
			key := fakeVarRe.FindStringSubmatch(match)[1]
			if v, ok := data[key]; ok {
				return fmt.Sprintf("%v", v)
			}
			warnings = append(warnings, "unresolved template variable: "+key)
			return ""
		})
	}
	return sub(subjectPattern), sub(bodyPattern), warnings
}
