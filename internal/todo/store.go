package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/topic"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("todo: item not found")

// Topics published by the store.
const (
	TopicItems = "item"
	TopicNew   = "item.new"
)

// ItemTopic returns the topic of a single item.
func ItemTopic(id int64) string {
	return "item." + strconv.FormatInt(id, 10)
}

// Item is one row of the list.
type Item struct {
	ID        int64
	Text      string
	Completed bool
}

// Counts summarizes the list.
type Counts struct {
	Total     int
	Completed int
}

// Active is the number of items not yet completed.
func (c Counts) Active() int {
	return c.Total - c.Completed
}

// Publisher is the part of the topic registry the store needs.
type Publisher interface {
	Publish(topic string, ev topic.Event) int
}

// StoreConfig configures Open.
type StoreConfig struct {
	// Path is the database file. It is created if missing.
	Path string

	// PoolSize is the number of connections. Defaults to 4.
	PoolSize int

	// Publisher receives change notifications. May be nil.
	Publisher Publisher

	Logger *slog.Logger
}

// Store persists items and announces every change.
// It is safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	pub    Publisher
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	text      TEXT    NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0
);
`

// Open opens the database at cfg.Path and creates the schema.
func Open(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, rerrors.New("R003").WithDetail("No database path was configured.")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, rerrors.New("R003").Wrap(err).WithDetailf("Opening %s failed.", cfg.Path)
	}

	s := &Store{
		pool:   pool,
		pub:    cfg.Publisher,
		logger: logger.With("component", "todo-store"),
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, rerrors.New("R003").Wrap(err).WithDetailf("Opening %s failed.", cfg.Path)
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, rerrors.New("R003").Wrap(err).WithDetailf("Creating the schema in %s failed.", cfg.Path)
	}

	s.logger.Info("todo store opened", "path", cfg.Path, "pool_size", size)
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("todo: %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes every connection.
func (s *Store) Close() error {
	return s.pool.Close()
}

// List returns every item in creation order.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("todo: take: %w", err)
	}
	defer s.pool.Put(conn)

	var items []Item
	err = sqlitex.Execute(conn, `SELECT id, text, completed FROM items ORDER BY id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			items = append(items, scanItem(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("todo: list: %w", err)
	}
	return items, nil
}

// Get returns the item with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Item{}, fmt.Errorf("todo: take: %w", err)
	}
	defer s.pool.Put(conn)
	return getItem(conn, id)
}

func getItem(conn *sqlite.Conn, id int64) (Item, error) {
	var (
		item  Item
		found bool
	)
	err := sqlitex.Execute(conn, `SELECT id, text, completed FROM items WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			item = scanItem(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Item{}, fmt.Errorf("todo: get %d: %w", id, err)
	}
	if !found {
		return Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return item, nil
}

func scanItem(stmt *sqlite.Stmt) Item {
	return Item{
		ID:        stmt.ColumnInt64(0),
		Text:      stmt.ColumnText(1),
		Completed: stmt.ColumnInt(2) != 0,
	}
}

// Counts returns the number of items and completed items.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("todo: take: %w", err)
	}
	defer s.pool.Put(conn)

	var c Counts
	err = sqlitex.Execute(conn, `SELECT count(*), coalesce(sum(completed), 0) FROM items`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c.Total = stmt.ColumnInt(0)
			c.Completed = stmt.ColumnInt(1)
			return nil
		},
	})
	if err != nil {
		return Counts{}, fmt.Errorf("todo: counts: %w", err)
	}
	return c, nil
}

// Create adds an item.
func (s *Store) Create(ctx context.Context, text string) (Item, error) {
	var item Item
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		err := sqlitex.Execute(conn, `INSERT INTO items (text, completed) VALUES (?, 0)`, &sqlitex.ExecOptions{
			Args: []any{text},
		})
		if err != nil {
			return nil, err
		}
		item = Item{ID: conn.LastInsertRowID(), Text: text}
		return []int64{item.ID}, nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("todo: create: %w", err)
	}
	s.publish(TopicNew, item.ID)
	return item, nil
}

// SetCompleted marks one item.
func (s *Store) SetCompleted(ctx context.Context, id int64, completed bool) error {
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		return s.updateOne(conn, id, `UPDATE items SET completed = ? WHERE id = ?`, boolInt(completed), id)
	})
	if err != nil {
		return fmt.Errorf("todo: set completed: %w", err)
	}
	return nil
}

// SetText replaces an item's text.
func (s *Store) SetText(ctx context.Context, id int64, text string) error {
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		return s.updateOne(conn, id, `UPDATE items SET text = ? WHERE id = ?`, text, id)
	})
	if err != nil {
		return fmt.Errorf("todo: set text: %w", err)
	}
	return nil
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		return s.updateOne(conn, id, `DELETE FROM items WHERE id = ?`, id)
	})
	if err != nil {
		return fmt.Errorf("todo: delete: %w", err)
	}
	return nil
}

// SetAllCompleted marks every item and returns how many changed.
func (s *Store) SetAllCompleted(ctx context.Context, completed bool) (int, error) {
	var changed []int64
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		ids, err := selectIDs(conn, `SELECT id FROM items WHERE completed != ?`, boolInt(completed))
		if err != nil {
			return nil, err
		}
		err = sqlitex.Execute(conn, `UPDATE items SET completed = ? WHERE completed != ?`, &sqlitex.ExecOptions{
			Args: []any{boolInt(completed), boolInt(completed)},
		})
		changed = ids
		return ids, err
	})
	if err != nil {
		return 0, fmt.Errorf("todo: set all completed: %w", err)
	}
	return len(changed), nil
}

// ClearCompleted deletes every completed item and returns how many were
// removed.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	var removed []int64
	err := s.write(ctx, func(conn *sqlite.Conn) ([]int64, error) {
		ids, err := selectIDs(conn, `SELECT id FROM items WHERE completed != 0`)
		if err != nil {
			return nil, err
		}
		err = sqlitex.Execute(conn, `DELETE FROM items WHERE completed != 0`, nil)
		removed = ids
		return ids, err
	})
	if err != nil {
		return 0, fmt.Errorf("todo: clear completed: %w", err)
	}
	return len(removed), nil
}

func (s *Store) updateOne(conn *sqlite.Conn, id int64, query string, args ...any) ([]int64, error) {
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return nil, err
	}
	if conn.Changes() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return []int64{id}, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func selectIDs(conn *sqlite.Conn, query string, args ...any) ([]int64, error) {
	var ids []int64
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnInt64(0))
			return nil
		},
	})
	return ids, err
}

// write runs fn in an immediate transaction and, once it commits,
// publishes a change for every id fn returns.
func (s *Store) write(ctx context.Context, fn func(conn *sqlite.Conn) ([]int64, error)) error {
	changed, err := s.transact(ctx, fn)
	if err != nil {
		return err
	}
	for _, id := range changed {
		s.publish(TopicItems, id)
		s.publish(ItemTopic(id), id)
	}
	return nil
}

func (s *Store) transact(ctx context.Context, fn func(conn *sqlite.Conn) ([]int64, error)) (changed []int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer endTransaction(&err)

	return fn(conn)
}

func (s *Store) publish(name string, id int64) {
	if s.pub == nil {
		return
	}
	n := s.pub.Publish(name, topic.Update(map[string]any{"id": id}))
	s.logger.Debug("published", "topic", name, "item", id, "sessions", n)
}
