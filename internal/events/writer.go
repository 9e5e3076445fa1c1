package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, tenantID, entityKind, entityID, actorID string, payload EventPayload) error {
	return w.append(ctx, tx, evtType, tenantID, entityKind, entityID, "", "", actorID, payload)
}

// Transition records a validated lifecycle transition with its from/to
// statuses; the alert engine consumes these rows.
func (w Writer) Transition(ctx context.Context, tx *sql.Tx, tenantID, entityKind, entityID, fromStatus, toStatus, actorID string, payload EventPayload) error {
	evtType := entityKind + ".transition"
	return w.append(ctx, tx, evtType, tenantID, entityKind, entityID, fromStatus, toStatus, actorID, payload)
}

func (w Writer) append(ctx context.Context, tx *sql.Tx, evtType, tenantID, entityKind, entityID, fromStatus, toStatus, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,tenant_id,entity_kind,entity_id,from_status,to_status,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		ts, evtType, nullable(tenantID), entityKind, nullable(entityID), nullable(fromStatus), nullable(toStatus), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
