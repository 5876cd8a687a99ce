package deliverylog

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/x2discord/x2d/internal/poller"
)

// Repo wraps the delivery log database.
type Repo struct {
	db   *sql.DB
	path string
}

// NewRepo creates a Repo for the database at path. Open must be called
// before use.
func NewRepo(path string) *Repo {
	return &Repo{path: path}
}

// Open opens the database and applies migrations.
func (r *Repo) Open() error {
	db, err := OpenDB(r.path)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return err
	}
	r.db = db
	return nil
}

// Close closes the database.
func (r *Repo) Close() error {
	if r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

// InsertBatch inserts a batch of delivery records in one transaction.
// Returns the number of rows inserted.
func (r *Repo) InsertBatch(records []poller.DeliveryRecord) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("deliverylog repo: not open")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("deliverylog repo begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO deliveries (
		sent_at_ns, channel_id, thread_id, account, entry_id, link
	) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("deliverylog repo prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		_, err := stmt.Exec(
			rec.SentAt.UnixNano(), rec.ChannelID, rec.ThreadID,
			rec.Account, rec.EntryID, rec.Link,
		)
		if err != nil {
			log.Printf("[deliverylog] warning: skip row insert failed (channel %d, entry %q): %v",
				rec.ChannelID, rec.EntryID, err)
			continue // skip individual row errors
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("deliverylog repo commit: %w", err)
	}
	return inserted, nil
}

// Row is one delivery log entry as stored.
type Row struct {
	ID        int64  `json:"id"`
	SentAtNs  int64  `json:"sent_at_ns"`
	ChannelID int64  `json:"channel_id"`
	ThreadID  int64  `json:"thread_id"`
	Account   string `json:"account"`
	EntryID   string `json:"entry_id"`
	Link      string `json:"link"`
}

// ListFilter specifies query filters for listing deliveries.
type ListFilter struct {
	ChannelID *int64
	Account   string
	Before    int64 // sent_at_ns < Before (0 means no upper bound)
	After     int64 // sent_at_ns > After (0 means no lower bound)
	Limit     int
	Offset    int
}

// List returns matching deliveries ordered by sent_at_ns DESC.
func (r *Repo) List(f ListFilter) ([]Row, error) {
	if r.db == nil {
		return nil, fmt.Errorf("deliverylog repo: not open")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 10000 {
		limit = 10000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []interface{}
	if f.ChannelID != nil {
		where = append(where, "channel_id = ?")
		args = append(args, *f.ChannelID)
	}
	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}
	if f.Before > 0 {
		where = append(where, "sent_at_ns < ?")
		args = append(args, f.Before)
	}
	if f.After > 0 {
		where = append(where, "sent_at_ns > ?")
		args = append(args, f.After)
	}

	q := "SELECT id, sent_at_ns, channel_id, thread_id, account, entry_id, link FROM deliveries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sent_at_ns DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("deliverylog repo list: %w", err)
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.SentAtNs, &row.ChannelID, &row.ThreadID,
			&row.Account, &row.EntryID, &row.Link); err != nil {
			log.Printf("[deliverylog] warning: skip malformed row during scan: %v", err)
			continue
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// DeleteOlderThan removes deliveries sent before cutoff. Returns the number
// of rows removed.
func (r *Repo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("deliverylog repo: not open")
	}
	res, err := r.db.Exec("DELETE FROM deliveries WHERE sent_at_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deliverylog repo purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
