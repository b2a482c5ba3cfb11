package db

import "fmt"

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Iteration int
	Detail    string
	Timestamp string
}

// LogRunEvent inserts a run lifecycle event.
func (d *DB) LogRunEvent(runID string, event string, iteration int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, iteration, detail) VALUES (?, ?, ?, ?)`,
		runID, event, iteration, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogAgentCall records one agent invocation.
func (d *DB) LogAgentCall(runID string, agent string, iteration int, taskID string, ok bool, durationMs int64, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO agent_calls (run_id, agent, iteration, task_id, ok, duration_ms, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, agent, iteration, taskID, ok, durationMs, detail,
	)
	if err != nil {
		return fmt.Errorf("log agent call: %w", err)
	}
	return nil
}

// LogBridgeCall records one remote bridge invocation.
func (d *DB) LogBridgeCall(runID string, command string, taskID string, success bool, durationMs int64, errMsg string) error {
	_, err := d.conn.Exec(
		`INSERT INTO bridge_calls (run_id, command, task_id, success, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, command, taskID, success, durationMs, errMsg,
	)
	if err != nil {
		return fmt.Errorf("log bridge call: %w", err)
	}
	return nil
}

// RecentRunEvents returns the most recent events for a run, newest first.
func (d *DB) RecentRunEvents(runID string, limit int) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, COALESCE(iteration, 0), COALESCE(detail, ''), timestamp
		 FROM run_events WHERE run_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &e.Iteration, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
