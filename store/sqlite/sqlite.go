/*
Package sqlite provides a SQLite-backed implementation of engine.TxStore.

PURPOSE:
  Persists users, groups, expenses, splits, recurring templates,
  friendships and notifications. The same SQL runs against *sql.DB for
  single statements and against *sql.Tx inside WithTx, through the dbtx
  interface.

KEY TABLES:
  expenses:           One row per expense (amount as decimal TEXT)
  expense_splits:     (expense_id, user_id, amount); written with the expense
  expense_items:      Optional receipt line items
  recurring_expenses: Templates; next_run is the only column the sweep updates
  group_members:      Unique (group_id, user_id)
  friendships:        Directed edges, unique (user_id, friend_id)
  notifications:      Best-effort side effects

TIME AND MONEY:
  Times are stored as fixed-width UTC TEXT (timeLayout) so lexical order
  matches chronological order. Amounts are decimal strings; nothing is
  ever stored as REAL.

CONCURRENCY:
  The pool is limited to one connection. ":memory:" databases then live
  as long as the store, and SQLite's single-writer model is respected
  without busy retries.

CLAIMING TEMPLATES:
  ClaimRecurring is UPDATE ... WHERE id = ? AND next_run = ? AND is_active.
  Zero affected rows means another sweep got there first.

USAGE:
  store, err := sqlite.New("./data/splitledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, engine.Options{Codec: factory.NewPlanFactory()})

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/engine"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements engine.Store on top of a dbtx.
type conn struct {
	q dbtx
}

// Store implements engine.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{conn: conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_by TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES groups(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		joined_at TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_user
		ON group_members(user_id);

	-- Expenses: amount and currency are fixed at write time
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		date TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'EXPENSE',
		payer_id TEXT NOT NULL REFERENCES users(id),
		group_id TEXT REFERENCES groups(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_group_date
		ON expenses(group_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_expenses_payer
		ON expenses(payer_id);

	CREATE TABLE IF NOT EXISTS expense_splits (
		expense_id TEXT NOT NULL REFERENCES expenses(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expense_splits_expense
		ON expense_splits(expense_id);
	CREATE INDEX IF NOT EXISTS idx_expense_splits_user
		ON expense_splits(user_id, expense_id);

	CREATE TABLE IF NOT EXISTS expense_items (
		expense_id TEXT NOT NULL REFERENCES expenses(id),
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expense_items_expense
		ON expense_items(expense_id);

	-- Recurring templates; split_plan is stored verbatim
	CREATE TABLE IF NOT EXISTS recurring_expenses (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL,
		interval TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		group_id TEXT,
		split_plan TEXT NOT NULL,
		next_run TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recurring_due
		ON recurring_expenses(is_active, next_run);

	CREATE TABLE IF NOT EXISTS friendships (
		user_id TEXT NOT NULL REFERENCES users(id),
		friend_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, friend_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (engine.TxStore)
// =============================================================================

// WithTx runs fn against a store bound to one SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// USERS
// =============================================================================

func (c *conn) CreateUser(ctx context.Context, u engine.User) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{Message: "email already registered"}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (c *conn) GetUser(ctx context.Context, id engine.UserID) (*engine.User, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, err
}

func (c *conn) GetUserByEmail(ctx context.Context, email string) (*engine.User, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE email = ? COLLATE NOCASE`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "user", ID: email}
	}
	return u, err
}

func scanUser(row *sql.Row) (*engine.User, error) {
	var u engine.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// =============================================================================
// GROUPS
// =============================================================================

func (c *conn) CreateGroup(ctx context.Context, g engine.Group) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO groups (id, name, currency, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Currency, g.CreatedBy, formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (c *conn) GetGroup(ctx context.Context, id engine.GroupID) (*engine.Group, error) {
	var g engine.Group
	var createdAt string
	err := c.q.QueryRowContext(ctx,
		`SELECT id, name, currency, created_by, created_at FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.Currency, &g.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "group", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

func (c *conn) AddGroupMember(ctx context.Context, m engine.GroupMember) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		m.GroupID, m.UserID, formatTime(m.JoinedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{Message: "user is already a member of this group"}
		}
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (c *conn) ListGroupMembers(ctx context.Context, id engine.GroupID) ([]engine.UserID, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at ASC, user_id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	members := []engine.UserID{}
	for rows.Next() {
		var uid engine.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}

func (c *conn) IsMember(ctx context.Context, groupID engine.GroupID, userID engine.UserID) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

func (c *conn) ListUserGroups(ctx context.Context, userID engine.UserID) ([]engine.Group, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT g.id, g.name, g.currency, g.created_by, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []engine.Group
	for rows.Next() {
		var g engine.Group
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.Currency, &g.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		g.CreatedAt = parseTime(createdAt)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// =============================================================================
// EXPENSES
// =============================================================================

// InsertExpense writes the expense row, its splits and its line items.
// Call it inside WithTx; on its own a failed split insert leaves the
// expense row behind.
func (c *conn) InsertExpense(ctx context.Context, e engine.Expense) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO expenses
		(id, description, amount, currency, date, category, payer_id, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount.String(), e.Currency, formatTime(e.Date),
		e.Category, e.PayerID, nullGroup(e.GroupID), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for i, s := range e.Splits {
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, amount, position) VALUES (?, ?, ?, ?)`,
			e.ID, s.UserID, s.Amount.String(), i)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}

	for i, it := range e.LineItems {
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO expense_items (expense_id, name, price, quantity, position) VALUES (?, ?, ?, ?, ?)`,
			e.ID, it.Name, it.Price.String(), it.Quantity, i)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

const expenseColumns = `e.id, e.description, e.amount, e.currency, e.date, e.category,
	e.payer_id, e.group_id, e.created_at`

// ListExpenses translates the tagged filter into a WHERE clause.
func (c *conn) ListExpenses(ctx context.Context, filter engine.ExpenseFilter) ([]engine.Expense, error) {
	var (
		where string
		args  []any
	)
	switch f := filter.(type) {
	case engine.ByGroup:
		where = `e.group_id = ?`
		args = []any{f.GroupID}
	case engine.ByUser:
		where = `e.payer_id = ? OR EXISTS (
			SELECT 1 FROM expense_splits s WHERE s.expense_id = e.id AND s.user_id = ?)`
		args = []any{f.UserID, f.UserID}
	case engine.ByFriendPair:
		where = `(e.payer_id = ? AND EXISTS (
				SELECT 1 FROM expense_splits s WHERE s.expense_id = e.id AND s.user_id = ?))
			OR (e.payer_id = ? AND EXISTS (
				SELECT 1 FROM expense_splits s WHERE s.expense_id = e.id AND s.user_id = ?))`
		args = []any{f.UserID, f.FriendID, f.FriendID, f.UserID}
	default:
		return nil, engine.UnknownFilterError(filter)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses e WHERE ` + where +
		` ORDER BY e.date DESC, e.created_at DESC`
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	expenses := []engine.Expense{}
	index := make(map[engine.ExpenseID]int)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	if err := c.loadSplits(ctx, expenses, index); err != nil {
		return nil, err
	}
	if err := c.loadItems(ctx, expenses, index); err != nil {
		return nil, err
	}
	return expenses, nil
}

func scanExpense(rows *sql.Rows) (engine.Expense, error) {
	var (
		e                       engine.Expense
		amount, date, createdAt string
		groupID                 sql.NullString
	)
	err := rows.Scan(&e.ID, &e.Description, &amount, &e.Currency, &date, &e.Category,
		&e.PayerID, &groupID, &createdAt)
	if err != nil {
		return e, err
	}
	if e.Amount, err = parseDecimal("expense amount", amount); err != nil {
		return e, err
	}
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(createdAt)
	if groupID.Valid {
		gid := engine.GroupID(groupID.String)
		e.GroupID = &gid
	}
	e.Splits = []engine.Split{}
	e.LineItems = []engine.LineItem{}
	return e, nil
}

func (c *conn) loadSplits(ctx context.Context, expenses []engine.Expense, index map[engine.ExpenseID]int) error {
	query, args := inClause(`SELECT expense_id, user_id, amount FROM expense_splits WHERE expense_id IN (%s) ORDER BY expense_id, position`, expenses)
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			expenseID engine.ExpenseID
			s         engine.Split
			amount    string
		)
		if err := rows.Scan(&expenseID, &s.UserID, &amount); err != nil {
			return err
		}
		if s.Amount, err = parseDecimal("split amount", amount); err != nil {
			return err
		}
		i := index[expenseID]
		expenses[i].Splits = append(expenses[i].Splits, s)
	}
	return rows.Err()
}

func (c *conn) loadItems(ctx context.Context, expenses []engine.Expense, index map[engine.ExpenseID]int) error {
	query, args := inClause(`SELECT expense_id, name, price, quantity FROM expense_items WHERE expense_id IN (%s) ORDER BY expense_id, position`, expenses)
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			expenseID engine.ExpenseID
			it        engine.LineItem
			price     string
		)
		if err := rows.Scan(&expenseID, &it.Name, &price, &it.Quantity); err != nil {
			return err
		}
		if it.Price, err = parseDecimal("line item price", price); err != nil {
			return err
		}
		i := index[expenseID]
		expenses[i].LineItems = append(expenses[i].LineItems, it)
	}
	return rows.Err()
}

func inClause(format string, expenses []engine.Expense) (string, []any) {
	args := make([]any, 0, len(expenses))
	for _, e := range expenses {
		args = append(args, e.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expenses)), ",")
	return fmt.Sprintf(format, placeholders), args
}

// =============================================================================
// RECURRING TEMPLATES
// =============================================================================

const recurringColumns = `id, description, amount, currency, category, interval, payer_id,
	group_id, split_plan, next_run, is_active, created_at`

func (c *conn) InsertRecurring(ctx context.Context, r engine.RecurringExpense) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO recurring_expenses (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Description, r.Amount.String(), r.Currency, r.Category, r.Interval, r.PayerID,
		nullGroup(r.GroupID), r.SplitPlan, formatTime(r.NextRun), r.IsActive, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert recurring expense: %w", err)
	}
	return nil
}

func (c *conn) GetRecurring(ctx context.Context, id engine.RecurringID) (*engine.RecurringExpense, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_expenses WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring expense: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &engine.NotFoundError{Kind: "recurring expense", ID: string(id)}
	}
	r, err := scanRecurring(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *conn) ListDueRecurring(ctx context.Context, now time.Time) ([]engine.RecurringExpense, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+recurringColumns+` FROM recurring_expenses
		WHERE is_active = TRUE AND next_run <= ?
		ORDER BY next_run ASC, id ASC`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list due recurring expenses: %w", err)
	}
	defer rows.Close()

	due := []engine.RecurringExpense{}
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, r)
	}
	return due, rows.Err()
}

func scanRecurring(rows *sql.Rows) (engine.RecurringExpense, error) {
	var (
		r                          engine.RecurringExpense
		amount, nextRun, createdAt string
		groupID                    sql.NullString
	)
	err := rows.Scan(&r.ID, &r.Description, &amount, &r.Currency, &r.Category, &r.Interval,
		&r.PayerID, &groupID, &r.SplitPlan, &nextRun, &r.IsActive, &createdAt)
	if err != nil {
		return r, err
	}
	if r.Amount, err = parseDecimal("recurring amount", amount); err != nil {
		return r, err
	}
	r.NextRun = parseTime(nextRun)
	r.CreatedAt = parseTime(createdAt)
	if groupID.Valid {
		gid := engine.GroupID(groupID.String)
		r.GroupID = &gid
	}
	return r, nil
}

// ClaimRecurring advances next_run only if nobody advanced it since prev was read.
func (c *conn) ClaimRecurring(ctx context.Context, id engine.RecurringID, prev, next time.Time) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE recurring_expenses SET next_run = ?
		WHERE id = ? AND next_run = ? AND is_active = TRUE`,
		formatTime(next), id, formatTime(prev))
	if err != nil {
		return fmt.Errorf("failed to claim recurring expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrConcurrentModification
	}
	return nil
}

func (c *conn) SetRecurringActive(ctx context.Context, id engine.RecurringID, active bool) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE recurring_expenses SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update recurring expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Kind: "recurring expense", ID: string(id)}
	}
	return nil
}

// =============================================================================
// FRIENDSHIPS
// =============================================================================

func (c *conn) AddFriendship(ctx context.Context, f engine.Friendship) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO friendships (user_id, friend_id, status, created_at) VALUES (?, ?, ?, ?)`,
		f.UserID, f.FriendID, f.Status, formatTime(f.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{Message: "already friends"}
		}
		return fmt.Errorf("failed to add friendship: %w", err)
	}
	return nil
}

func (c *conn) ListFriends(ctx context.Context, userID engine.UserID) ([]engine.Friendship, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT user_id, friend_id, status, created_at FROM friendships
		WHERE user_id = ? ORDER BY created_at ASC, friend_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := []engine.Friendship{}
	for rows.Next() {
		var f engine.Friendship
		var createdAt string
		if err := rows.Scan(&f.UserID, &f.FriendID, &f.Status, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt = parseTime(createdAt)
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

func (c *conn) AreFriends(ctx context.Context, userID, friendID engine.UserID) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM friendships WHERE user_id = ? AND friend_id = ?`, userID, friendID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (c *conn) InsertNotification(ctx context.Context, n engine.Notification) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, message, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Message, n.IsRead, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (c *conn) ListNotifications(ctx context.Context, userID engine.UserID, limit int) ([]engine.Notification, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, user_id, type, message, is_read, created_at FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []engine.Notification{}
	for rows.Next() {
		var n engine.Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *conn) MarkNotificationRead(ctx context.Context, userID engine.UserID, id engine.NotificationID) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Kind: "notification", ID: string(id)}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// parseDecimal reads a stored amount. A value that does not parse is an error,
// never a silent zero.
func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return d, nil
}

func nullGroup(id *engine.GroupID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ engine.TxStore = (*Store)(nil)
