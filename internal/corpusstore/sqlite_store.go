package corpusstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
)

// SQLiteCorpusStore is an implementation of CorpusStore that uses SQLite.
// The item index is the primary key, which keeps metadata and embedding
// rows aligned by construction.
type SQLiteCorpusStore struct {
	conn   *sqlite.Conn
	dbPath string
	mu     sync.Mutex
}

// NewSQLiteCorpusStore creates a new SQLiteCorpusStore instance.
func NewSQLiteCorpusStore() *SQLiteCorpusStore {
	return &SQLiteCorpusStore{}
}

// Initialize initializes the store with the given database path.
func (s *SQLiteCorpusStore) Initialize(dbPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dbPath = dbPath

	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	s.conn = conn

	if err := s.createTable(); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// createTable creates the reference_items table if it doesn't exist.
func (s *SQLiteCorpusStore) createTable() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS reference_items (
		idx INTEGER PRIMARY KEY,
		page_type TEXT NOT NULL,
		main_title TEXT NOT NULL DEFAULT '',
		tone_and_manner TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		visual_vibe TEXT NOT NULL DEFAULT '',
		layout_feature TEXT NOT NULL DEFAULT '',
		color_palette_feel TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_url TEXT NOT NULL DEFAULT '',
		embedding BLOB NOT NULL,
		embedding_min REAL NOT NULL,
		embedding_max REAL NOT NULL
	);`

	stmt, err := s.conn.Prepare(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare create table statement: %w", err)
	}
	defer stmt.Reset()

	if _, err = stmt.Step(); err != nil {
		return fmt.Errorf("failed to execute create table statement: %w", err)
	}

	return nil
}

// Close closes the store and releases any resources.
func (s *SQLiteCorpusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// Import replaces the stored corpus with c inside a single savepoint.
func (s *SQLiteCorpusStore) Import(c *corpus.Corpus) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, fmt.Errorf("store not initialized")
	}

	defer sqlitex.Save(s.conn)(&err)

	if err = sqlitex.Exec(s.conn, "DELETE FROM reference_items;", nil); err != nil {
		return 0, fmt.Errorf("failed to clear reference items: %w", err)
	}

	insertSQL := `
	INSERT INTO reference_items (
		idx, page_type, main_title, tone_and_manner, keywords, visual_vibe,
		layout_feature, color_palette_feel, file_name, file_url,
		embedding, embedding_min, embedding_max
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	stmt, err := s.conn.Prepare(insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	for i := 0; i < c.Len(); i++ {
		item := c.Item(i)
		entry := c.Entry(i)

		keywords, err := json.Marshal(item.Keywords)
		if err != nil {
			return n, fmt.Errorf("failed to encode keywords for item %d: %w", i, err)
		}

		stmt.Reset()
		stmt.ClearBindings()

		// Bind parameters - indices in sqlite are 1-based
		stmt.BindInt64(1, int64(i))
		stmt.BindText(2, item.PageType)
		stmt.BindText(3, item.MainTitle)
		stmt.BindText(4, item.ToneAndManner)
		stmt.BindText(5, string(keywords))
		stmt.BindText(6, item.VisualVibe)
		stmt.BindText(7, item.LayoutFeature)
		stmt.BindText(8, item.ColorPaletteFeel)
		stmt.BindText(9, item.FileName)
		stmt.BindText(10, item.FileURL)
		stmt.BindBytes(11, entry.Data)
		stmt.BindFloat(12, entry.Min)
		stmt.BindFloat(13, entry.Max)

		if _, err := stmt.Step(); err != nil {
			return n, fmt.Errorf("failed to insert reference item %d: %w", i, err)
		}
		n++
	}

	return n, nil
}

// Load reads every stored item in index order and rebuilds the corpus.
func (s *SQLiteCorpusStore) Load(ctx context.Context) (*corpus.Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	selectSQL := `
	SELECT idx, page_type, main_title, tone_and_manner, keywords, visual_vibe,
		layout_feature, color_palette_feel, file_name, file_url,
		embedding, embedding_min, embedding_max
	FROM reference_items
	ORDER BY idx ASC;`

	stmt, err := s.conn.Prepare(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	var (
		items   []corpus.ReferenceItem
		entries []corpus.QuantizedEntry
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to execute select statement: %w", err)
		}
		if !hasRow {
			break
		}

		// Column indices are 0-based
		idx := int(stmt.ColumnInt64(0))
		if idx != len(items) {
			return nil, fmt.Errorf("%w: gap in stored indexes at %d", corpus.ErrMisaligned, idx)
		}

		item := corpus.ReferenceItem{
			PageType:         stmt.ColumnText(1),
			MainTitle:        stmt.ColumnText(2),
			ToneAndManner:    stmt.ColumnText(3),
			VisualVibe:       stmt.ColumnText(5),
			LayoutFeature:    stmt.ColumnText(6),
			ColorPaletteFeel: stmt.ColumnText(7),
			FileName:         stmt.ColumnText(8),
			FileURL:          stmt.ColumnText(9),
		}
		if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &item.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords for item %d: %w", idx, err)
		}

		data := make([]byte, stmt.ColumnLen(10))
		stmt.ColumnBytes(10, data)

		items = append(items, item)
		entries = append(entries, corpus.QuantizedEntry{
			Data: data,
			Min:  stmt.ColumnFloat(11),
			Max:  stmt.ColumnFloat(12),
		})
	}

	return corpus.New(items, entries)
}

// Count returns the number of stored reference items.
func (s *SQLiteCorpusStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, fmt.Errorf("store not initialized")
	}

	stmt, err := s.conn.Prepare(`SELECT COUNT(*) FROM reference_items;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare count statement: %w", err)
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("failed to count reference items: %w", err)
	}
	return int(stmt.ColumnInt64(0)), nil
}

// Clear deletes every stored item.
func (s *SQLiteCorpusStore) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, fmt.Errorf("store not initialized")
	}

	if err := sqlitex.Exec(s.conn, "DELETE FROM reference_items;", nil); err != nil {
		return 0, fmt.Errorf("failed to clear reference items: %w", err)
	}
	return s.conn.Changes(), nil
}

var (
	_ CorpusStore   = (*SQLiteCorpusStore)(nil)
	_ corpus.Source = (*SQLiteCorpusStore)(nil)
)
