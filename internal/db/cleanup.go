package db

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Cleanup deletes render runs older than the retention duration and returns their
// output paths so the caller can remove the images
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) ([]string, error) {
	hours := int(retention.Hours())
	if hours < 1 {
		hours = 1
	}
	cutoff := fmt.Sprintf("-%d hours", hours)

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT output_path FROM render_runs
		WHERE datetime(created_at) < datetime('now', ?) AND status != ?
	`, cutoff, string(RunRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to find expired runs: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired run: %w", err)
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	queries := []struct {
		name  string
		query string
	}{
		{
			name:  "render_tally",
			query: `DELETE FROM render_tally WHERE run_id IN (SELECT run_id FROM render_runs WHERE datetime(created_at) < datetime('now', ?) AND status != ?)`,
		},
		{
			name:  "render_runs",
			query: `DELETE FROM render_runs WHERE datetime(created_at) < datetime('now', ?) AND status != ?`,
		},
	}

	deletedRuns := 0
	for _, q := range queries {
		result, err := tx.ExecContext(ctx, q.query, cutoff, string(RunRunning))
		if err != nil {
			return nil, fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		if q.name == "render_runs" {
			n, _ := result.RowsAffected()
			deletedRuns = int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	if deletedRuns > 0 {
		log.Printf("Cleanup: deleted %d render runs older than %d hours", deletedRuns, hours)
	}
	return paths, nil
}
