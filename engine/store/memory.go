// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/splitledger/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// state holds the data and implements engine.Store without locking.
// Memory adds the lock; TxMemory hands state to WithTx callbacks while
// holding it.
type state struct {
	users         map[engine.UserID]engine.User
	groups        map[engine.GroupID]engine.Group
	members       map[engine.GroupID][]engine.GroupMember
	expenses      []engine.Expense
	recurring     map[engine.RecurringID]engine.RecurringExpense
	friendships   map[engine.UserID][]engine.Friendship
	notifications []engine.Notification
}

func newState() *state {
	return &state{
		users:       make(map[engine.UserID]engine.User),
		groups:      make(map[engine.GroupID]engine.Group),
		members:     make(map[engine.GroupID][]engine.GroupMember),
		recurring:   make(map[engine.RecurringID]engine.RecurringExpense),
		friendships: make(map[engine.UserID][]engine.Friendship),
	}
}

// clone copies every container. Stored values are never mutated in place,
// so copying the containers is enough for rollback.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.members {
		c.members[k] = append([]engine.GroupMember{}, v...)
	}
	c.expenses = append([]engine.Expense{}, s.expenses...)
	for k, v := range s.recurring {
		c.recurring[k] = v
	}
	for k, v := range s.friendships {
		c.friendships[k] = append([]engine.Friendship{}, v...)
	}
	c.notifications = append([]engine.Notification{}, s.notifications...)
	return c
}

// ----- users -----

func (s *state) CreateUser(_ context.Context, u engine.User) error {
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &engine.ConflictError{Message: "email already registered"}
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *state) GetUser(_ context.Context, id engine.UserID) (*engine.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "user", ID: string(id)}
	}
	return &u, nil
}

func (s *state) GetUserByEmail(_ context.Context, email string) (*engine.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, &engine.NotFoundError{Kind: "user", ID: email}
}

// ----- groups -----

func (s *state) CreateGroup(_ context.Context, g engine.Group) error {
	if _, ok := s.groups[g.ID]; ok {
		return &engine.ConflictError{Message: "group already exists"}
	}
	s.groups[g.ID] = g
	return nil
}

func (s *state) GetGroup(_ context.Context, id engine.GroupID) (*engine.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "group", ID: string(id)}
	}
	return &g, nil
}

func (s *state) AddGroupMember(ctx context.Context, m engine.GroupMember) error {
	if ok, _ := s.IsMember(ctx, m.GroupID, m.UserID); ok {
		return &engine.ConflictError{Message: "user is already a member of this group"}
	}
	s.members[m.GroupID] = append(s.members[m.GroupID], m)
	return nil
}

func (s *state) ListGroupMembers(_ context.Context, id engine.GroupID) ([]engine.UserID, error) {
	out := make([]engine.UserID, 0, len(s.members[id]))
	for _, m := range s.members[id] {
		out = append(out, m.UserID)
	}
	return out, nil
}

func (s *state) IsMember(_ context.Context, groupID engine.GroupID, userID engine.UserID) (bool, error) {
	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *state) ListUserGroups(ctx context.Context, userID engine.UserID) ([]engine.Group, error) {
	var out []engine.Group
	for id, g := range s.groups {
		if ok, _ := s.IsMember(ctx, id, userID); ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ----- expenses -----

func (s *state) InsertExpense(_ context.Context, e engine.Expense) error {
	for _, existing := range s.expenses {
		if existing.ID == e.ID {
			return &engine.ConflictError{Message: "expense already exists"}
		}
	}
	s.expenses = append(s.expenses, copyExpense(e))
	return nil
}

// copyExpense detaches the slices so callers never share them with the store.
func copyExpense(e engine.Expense) engine.Expense {
	e.Splits = append([]engine.Split{}, e.Splits...)
	e.LineItems = append([]engine.LineItem{}, e.LineItems...)
	return e
}

func (s *state) ListExpenses(_ context.Context, filter engine.ExpenseFilter) ([]engine.Expense, error) {
	switch filter.(type) {
	case engine.ByGroup, engine.ByUser, engine.ByFriendPair:
	default:
		return nil, engine.UnknownFilterError(filter)
	}

	out := []engine.Expense{}
	for _, e := range s.expenses {
		if engine.Matches(filter, e) {
			out = append(out, copyExpense(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ----- recurring -----

func (s *state) InsertRecurring(_ context.Context, r engine.RecurringExpense) error {
	s.recurring[r.ID] = r
	return nil
}

func (s *state) GetRecurring(_ context.Context, id engine.RecurringID) (*engine.RecurringExpense, error) {
	r, ok := s.recurring[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "recurring expense", ID: string(id)}
	}
	return &r, nil
}

func (s *state) ListDueRecurring(_ context.Context, now time.Time) ([]engine.RecurringExpense, error) {
	out := []engine.RecurringExpense{}
	for _, r := range s.recurring {
		if r.IsActive && !r.NextRun.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ClaimRecurring(_ context.Context, id engine.RecurringID, prev, next time.Time) error {
	r, ok := s.recurring[id]
	if !ok {
		return &engine.NotFoundError{Kind: "recurring expense", ID: string(id)}
	}
	if !r.IsActive || !r.NextRun.Equal(prev) {
		return engine.ErrConcurrentModification
	}
	r.NextRun = next
	s.recurring[id] = r
	return nil
}

func (s *state) SetRecurringActive(_ context.Context, id engine.RecurringID, active bool) error {
	r, ok := s.recurring[id]
	if !ok {
		return &engine.NotFoundError{Kind: "recurring expense", ID: string(id)}
	}
	r.IsActive = active
	s.recurring[id] = r
	return nil
}

// ----- friends -----

func (s *state) AddFriendship(ctx context.Context, f engine.Friendship) error {
	if ok, _ := s.AreFriends(ctx, f.UserID, f.FriendID); ok {
		return &engine.ConflictError{Message: "already friends"}
	}
	s.friendships[f.UserID] = append(s.friendships[f.UserID], f)
	return nil
}

func (s *state) ListFriends(_ context.Context, userID engine.UserID) ([]engine.Friendship, error) {
	return append([]engine.Friendship{}, s.friendships[userID]...), nil
}

func (s *state) AreFriends(_ context.Context, userID, friendID engine.UserID) (bool, error) {
	for _, f := range s.friendships[userID] {
		if f.FriendID == friendID {
			return true, nil
		}
	}
	return false, nil
}

// ----- notifications -----

func (s *state) InsertNotification(_ context.Context, n engine.Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *state) ListNotifications(_ context.Context, userID engine.UserID, limit int) ([]engine.Notification, error) {
	out := []engine.Notification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *state) MarkNotificationRead(_ context.Context, userID engine.UserID, id engine.NotificationID) error {
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			s.notifications[i] = n
			return nil
		}
	}
	return &engine.NotFoundError{Kind: "notification", ID: string(id)}
}

// =============================================================================
// LOCKED MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func (m *Memory) read() (*state, func()) {
	m.mu.RLock()
	return m.s, m.mu.RUnlock
}

func (m *Memory) write() (*state, func()) {
	m.mu.Lock()
	return m.s, m.mu.Unlock
}

func (m *Memory) CreateUser(ctx context.Context, u engine.User) error {
	s, unlock := m.write()
	defer unlock()
	return s.CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id engine.UserID) (*engine.User, error) {
	s, unlock := m.read()
	defer unlock()
	return s.GetUser(ctx, id)
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*engine.User, error) {
	s, unlock := m.read()
	defer unlock()
	return s.GetUserByEmail(ctx, email)
}

func (m *Memory) CreateGroup(ctx context.Context, g engine.Group) error {
	s, unlock := m.write()
	defer unlock()
	return s.CreateGroup(ctx, g)
}

func (m *Memory) GetGroup(ctx context.Context, id engine.GroupID) (*engine.Group, error) {
	s, unlock := m.read()
	defer unlock()
	return s.GetGroup(ctx, id)
}

func (m *Memory) AddGroupMember(ctx context.Context, gm engine.GroupMember) error {
	s, unlock := m.write()
	defer unlock()
	return s.AddGroupMember(ctx, gm)
}

func (m *Memory) ListGroupMembers(ctx context.Context, id engine.GroupID) ([]engine.UserID, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListGroupMembers(ctx, id)
}

func (m *Memory) IsMember(ctx context.Context, groupID engine.GroupID, userID engine.UserID) (bool, error) {
	s, unlock := m.read()
	defer unlock()
	return s.IsMember(ctx, groupID, userID)
}

func (m *Memory) ListUserGroups(ctx context.Context, userID engine.UserID) ([]engine.Group, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListUserGroups(ctx, userID)
}

func (m *Memory) InsertExpense(ctx context.Context, e engine.Expense) error {
	s, unlock := m.write()
	defer unlock()
	return s.InsertExpense(ctx, e)
}

func (m *Memory) ListExpenses(ctx context.Context, filter engine.ExpenseFilter) ([]engine.Expense, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListExpenses(ctx, filter)
}

func (m *Memory) InsertRecurring(ctx context.Context, r engine.RecurringExpense) error {
	s, unlock := m.write()
	defer unlock()
	return s.InsertRecurring(ctx, r)
}

func (m *Memory) GetRecurring(ctx context.Context, id engine.RecurringID) (*engine.RecurringExpense, error) {
	s, unlock := m.read()
	defer unlock()
	return s.GetRecurring(ctx, id)
}

func (m *Memory) ListDueRecurring(ctx context.Context, now time.Time) ([]engine.RecurringExpense, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListDueRecurring(ctx, now)
}

func (m *Memory) ClaimRecurring(ctx context.Context, id engine.RecurringID, prev, next time.Time) error {
	s, unlock := m.write()
	defer unlock()
	return s.ClaimRecurring(ctx, id, prev, next)
}

func (m *Memory) SetRecurringActive(ctx context.Context, id engine.RecurringID, active bool) error {
	s, unlock := m.write()
	defer unlock()
	return s.SetRecurringActive(ctx, id, active)
}

func (m *Memory) AddFriendship(ctx context.Context, f engine.Friendship) error {
	s, unlock := m.write()
	defer unlock()
	return s.AddFriendship(ctx, f)
}

func (m *Memory) ListFriends(ctx context.Context, userID engine.UserID) ([]engine.Friendship, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListFriends(ctx, userID)
}

func (m *Memory) AreFriends(ctx context.Context, userID, friendID engine.UserID) (bool, error) {
	s, unlock := m.read()
	defer unlock()
	return s.AreFriends(ctx, userID, friendID)
}

func (m *Memory) InsertNotification(ctx context.Context, n engine.Notification) error {
	s, unlock := m.write()
	defer unlock()
	return s.InsertNotification(ctx, n)
}

func (m *Memory) ListNotifications(ctx context.Context, userID engine.UserID, limit int) ([]engine.Notification, error) {
	s, unlock := m.read()
	defer unlock()
	return s.ListNotifications(ctx, userID, limit)
}

func (m *Memory) MarkNotificationRead(ctx context.Context, userID engine.UserID, id engine.NotificationID) error {
	s, unlock := m.write()
	defer unlock()
	return s.MarkNotificationRead(ctx, userID, id)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.s.clone()
	if err := fn(tm.s); err != nil {
		tm.s = snapshot
		return err
	}
	return nil
}

var _ engine.TxStore = (*TxMemory)(nil)
