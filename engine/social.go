/*
social.go - Users, friends, groups and notifications

PURPOSE:
  The relationships balances are computed over. None of these carry
  money; they decide who may write into a group and whose balances a
  user sees.

RULES:
  AddFriend:      lookup by email (case-insensitive); no self-add; both
                  directed edges written in one transaction.
  CreateGroup:    currency defaults to USD; creator joins in the same
                  transaction.
  AddGroupMember: only members may add; unknown email is NotFound; an
                  existing member is a conflict.
  Notifications:  owners only; marking someone else's is NotFound.

SEE ALSO:
  - store.go: AddFriendship, AddGroupMember
*/
package engine

import (
	"context"
	"fmt"
	"strings"
)

// NotificationLimit is how many notifications ListNotifications returns.
const NotificationLimit = 20

// =============================================================================
// USERS
// =============================================================================

// RegisterUser creates a user. Emails are unique regardless of case.
func (e *Engine) RegisterUser(ctx context.Context, name, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	if _, err := e.store.GetUserByEmail(ctx, email); err == nil {
		return nil, &ConflictError{Message: "email already registered"}
	} else if !IsNotFound(err) {
		return nil, err
	}

	u := User{
		ID:        UserID(NewID()),
		Name:      strings.TrimSpace(name),
		Email:     email,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (e *Engine) GetUser(ctx context.Context, id UserID) (*User, error) {
	return e.store.GetUser(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// FRIENDS
// =============================================================================

// AddFriend links the user and the owner of email in both directions.
func (e *Engine) AddFriend(ctx context.Context, user UserID, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	me, err := e.store.GetUser(ctx, user)
	if err != nil {
		return nil, err
	}
	friend, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if friend.ID == user {
		return nil, &ValidationError{Field: "email", Message: "cannot add yourself as a friend"}
	}

	already, err := e.store.AreFriends(ctx, user, friend.ID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, &ConflictError{Message: "already friends"}
	}

	now := e.now().UTC()
	err = e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.AddFriendship(ctx, Friendship{UserID: user, FriendID: friend.ID, Status: FriendshipAccepted, CreatedAt: now}); err != nil {
			return err
		}
		return tx.AddFriendship(ctx, Friendship{UserID: friend.ID, FriendID: user, Status: FriendshipAccepted, CreatedAt: now})
	})
	if err != nil {
		return nil, fmt.Errorf("add friendship: %w", err)
	}

	e.notify(ctx, []Notification{e.newNotification(friend.ID, NotifyFriendAdd,
		fmt.Sprintf("%s added you as a friend", me.DisplayName()))})
	return friend, nil
}

func (e *Engine) ListFriends(ctx context.Context, user UserID) ([]User, error) {
	edges, err := e.store.ListFriends(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(edges))
	for _, f := range edges {
		u, err := e.store.GetUser(ctx, f.FriendID)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// =============================================================================
// GROUPS
// =============================================================================

func (e *Engine) CreateGroup(ctx context.Context, actor UserID, name string, currency Currency) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if _, err := e.store.GetUser(ctx, actor); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	g := Group{
		ID:        GroupID(NewID()),
		Name:      name,
		Currency:  Currency(strings.ToUpper(string(currency))),
		CreatedBy: actor,
		CreatedAt: now,
	}
	err := e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateGroup(ctx, g); err != nil {
			return err
		}
		return tx.AddGroupMember(ctx, GroupMember{GroupID: g.ID, UserID: actor, JoinedAt: now})
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return &g, nil
}

// GroupSummary is one row of a user's group list.
type GroupSummary struct {
	Group       Group
	MemberCount int
}

// GroupDetail is a group with its roster and expenses, newest first.
type GroupDetail struct {
	Group    Group
	Members  []User
	Expenses []Expense
}

// ListGroups returns the groups user belongs to, by name.
func (e *Engine) ListGroups(ctx context.Context, user UserID) ([]GroupSummary, error) {
	groups, err := e.store.ListUserGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		members, err := e.store.ListGroupMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupSummary{Group: g, MemberCount: len(members)})
	}
	return out, nil
}

// GetGroup returns the group with members and expenses. Only members may read it.
func (e *Engine) GetGroup(ctx context.Context, actor UserID, groupID GroupID) (*GroupDetail, error) {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, e.store, groupID, actor, "actor"); err != nil {
		return nil, err
	}

	ids, err := e.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	detail := &GroupDetail{Group: *group, Members: make([]User, 0, len(ids))}
	for _, id := range ids {
		u, err := e.store.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		detail.Members = append(detail.Members, *u)
	}

	detail.Expenses, err = e.store.ListExpenses(ctx, ByGroup{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AddGroupMember adds the owner of email to the group on behalf of actor.
func (e *Engine) AddGroupMember(ctx context.Context, actor UserID, groupID GroupID, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email is required"}
	}
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, e.store, groupID, actor, "actor"); err != nil {
		return nil, err
	}
	u, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	member, err := e.store.IsMember(ctx, groupID, u.ID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, &ConflictError{Message: "user is already a member of this group"}
	}

	if err := e.store.AddGroupMember(ctx, GroupMember{GroupID: groupID, UserID: u.ID, JoinedAt: e.now().UTC()}); err != nil {
		return nil, err
	}

	inviter := e.payerName(ctx, actor)
	e.notify(ctx, []Notification{e.newNotification(u.ID, NotifyGroupAdd,
		fmt.Sprintf("%s added you to the group %q", inviter, group.Name))})
	return u, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (e *Engine) ListNotifications(ctx context.Context, user UserID) ([]Notification, error) {
	return e.store.ListNotifications(ctx, user, NotificationLimit)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, user UserID, id NotificationID) error {
	return e.store.MarkNotificationRead(ctx, user, id)
}
