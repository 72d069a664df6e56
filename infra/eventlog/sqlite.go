package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        category TEXT,
        agent_id INTEGER,
        incident_id TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec coreeventlog.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (ts, category, agent_id, incident_id, record) VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), string(rec.Category), rec.AgentID, rec.IncidentID, string(b))
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, q coreeventlog.Query) ([]coreeventlog.Record, error) {
	var args []any
	query := `SELECT record FROM audit_log WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(q.Category))
	}
	if q.AgentID != 0 {
		query += ` AND agent_id = ?`
		args = append(args, q.AgentID)
	}
	if q.IncidentID != "" {
		query += ` AND incident_id = ?`
		args = append(args, q.IncidentID)
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coreeventlog.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r coreeventlog.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
