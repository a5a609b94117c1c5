package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// MemoryStore bundles in-memory implementations of every store
// contract. It exists for tests and single-shot tooling; production
// uses SQLiteStore.
type MemoryStore struct {
	History *MemoryHistory
	Alerts  *MemoryAlerts
	Rules   *MemoryRules
	Slots   *MemorySlots
	Audit   *MemoryAudit
}

// NewMemoryStore creates an empty in-memory store bundle.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		History: &MemoryHistory{bySlot: make(map[string][]model.DetectionObservation)},
		Alerts:  &MemoryAlerts{entries: make(map[string]*model.AlertQueueEntry)},
		Rules:   &MemoryRules{rules: make(map[string]*model.AlertRule)},
		Slots:   &MemorySlots{slots: make(map[string]*model.Slot)},
		Audit:   &MemoryAudit{byEntry: make(map[string][]model.Transition)},
	}
}

// MemoryHistory implements DetectionHistory with per-slot slices kept
// sorted by timestamp.
type MemoryHistory struct {
	mu     sync.RWMutex
	bySlot map[string][]model.DetectionObservation
}

func (m *MemoryHistory) Append(ctx context.Context, obs *model.DetectionObservation) error {
	if err := validateObservation(obs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *obs
	cp.Timestamp = cp.Timestamp.UTC()
	list := append(m.bySlot[obs.SlotID], cp)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
	m.bySlot[obs.SlotID] = list
	return nil
}

func (m *MemoryHistory) Query(ctx context.Context, slotID string, since time.Time) ([]model.DetectionObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.DetectionObservation
	for _, obs := range m.bySlot[slotID] {
		if !obs.Timestamp.Before(since.UTC()) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (m *MemoryHistory) LatestBefore(ctx context.Context, slotID string, t time.Time) (*model.DetectionObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.bySlot[slotID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].Timestamp.After(t.UTC()) {
			cp := list[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// MemoryAlerts implements AlertStore.
type MemoryAlerts struct {
	mu      sync.RWMutex
	entries map[string]*model.AlertQueueEntry
}

func (m *MemoryAlerts) Create(ctx context.Context, entry *model.AlertQueueEntry) error {
	if entry == nil || entry.ID == "" {
		return ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *MemoryAlerts) Update(ctx context.Context, entry *model.AlertQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entry.ID]; !ok {
		return ErrNotFound
	}
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *MemoryAlerts) Get(ctx context.Context, id string) (*model.AlertQueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (m *MemoryAlerts) FindOpen(ctx context.Context, ruleType model.RuleType, subjectID string, maxRetries int) (*model.AlertQueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *model.AlertQueueEntry
	for _, entry := range m.entries {
		if entry.Type != ruleType || entry.SubjectID != subjectID || !entry.Open(maxRetries) {
			continue
		}
		if newest == nil || entry.CreatedAt.After(newest.CreatedAt) {
			newest = entry
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryAlerts) ListDue(ctx context.Context, now time.Time, maxRetries int) ([]*model.AlertQueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*model.AlertQueueEntry
	for _, entry := range m.entries {
		if entry.Open(maxRetries) && !entry.ScheduledAt.After(now) {
			cp := *entry
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	return due, nil
}

func (m *MemoryAlerts) List(ctx context.Context, filters AlertFilters, offset, limit int) ([]*model.AlertQueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*model.AlertQueueEntry
	for _, entry := range m.entries {
		if filters.Status != "" && entry.Status != filters.Status {
			continue
		}
		if filters.Type != "" && entry.Type != filters.Type {
			continue
		}
		if filters.SubjectID != "" && entry.SubjectID != filters.SubjectID {
			continue
		}
		cp := *entry
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// MemoryRules implements RuleStore.
type MemoryRules struct {
	mu    sync.RWMutex
	rules map[string]*model.AlertRule
}

func (m *MemoryRules) ListEnabled(ctx context.Context) ([]*model.AlertRule, error) {
	return m.list(true)
}

func (m *MemoryRules) List(ctx context.Context) ([]*model.AlertRule, error) {
	return m.list(false)
}

func (m *MemoryRules) list(enabledOnly bool) ([]*model.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rules []*model.AlertRule
	for _, rule := range m.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}
		cp := *rule
		rules = append(rules, &cp)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *MemoryRules) Get(ctx context.Context, id string) (*model.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

func (m *MemoryRules) Upsert(ctx context.Context, rule *model.AlertRule) error {
	if rule == nil {
		return ErrValidation
	}
	if err := rule.Validate(); err != nil {
		return ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryRules) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// MemorySlots implements SlotStore.
type MemorySlots struct {
	mu    sync.RWMutex
	slots map[string]*model.Slot
}

func (m *MemorySlots) List(ctx context.Context) ([]*model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var slots []*model.Slot
	for _, slot := range m.slots {
		cp := *slot
		slots = append(slots, &cp)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotID < slots[j].SlotID })
	return slots, nil
}

func (m *MemorySlots) Get(ctx context.Context, id string) (*model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *slot
	return &cp, nil
}

func (m *MemorySlots) Upsert(ctx context.Context, slot *model.Slot) error {
	if slot == nil || slot.SlotID == "" {
		return ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *slot
	m.slots[slot.SlotID] = &cp
	return nil
}

// MemoryAudit implements AuditSink.
type MemoryAudit struct {
	mu      sync.RWMutex
	byEntry map[string][]model.Transition
}

func (m *MemoryAudit) Record(ctx context.Context, tr *model.Transition) error {
	if tr == nil || tr.ID == "" || tr.EntryID == "" || !tr.To.Valid() {
		return ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEntry[tr.EntryID] = append(m.byEntry[tr.EntryID], *tr)
	return nil
}

func (m *MemoryAudit) ListByEntry(ctx context.Context, entryID string) ([]model.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions := make([]model.Transition, len(m.byEntry[entryID]))
	copy(transitions, m.byEntry[entryID])
	return transitions, nil
}
