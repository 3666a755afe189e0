package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends entries to the audit trail. Entries are written inside
// the caller's transaction so a rolled-back operation leaves no trace,
// and committed state is never missing its audit record.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Detail map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, action, projectID, entityKind, entityID, actorID string, detail Detail) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if detail == nil {
		detail = Detail{}
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_trail(ts,actor_id,action,entity_kind,entity_id,project_id,detail_json) VALUES (?,?,?,?,?,?,?)`,
		ts, actorID, action, entityKind, nullable(entityID), nullable(projectID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
