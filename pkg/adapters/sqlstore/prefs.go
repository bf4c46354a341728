package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

// PreferenceStore implements prefs.Store on the preferences table.
type PreferenceStore struct {
	db       *sql.DB
	dialect  Dialect
	readOnly bool
}

// Load implements prefs.Store.
func (p *PreferenceStore) Load(ctx context.Context, scope string) (map[string]prefs.Value, error) {
	rows, err := p.db.QueryContext(ctx,
		p.dialect.rebind(`SELECT key, type, payload FROM preferences WHERE scope = ?`), scope)
	if err != nil {
		return nil, fmt.Errorf("select preferences %s: %w", scope, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]prefs.Value)
	for rows.Next() {
		var key, typ, payload string
		if err := rows.Scan(&key, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		t, err := prefs.ParseType(typ)
		if err != nil {
			return nil, fmt.Errorf("preference %s/%s: %w", scope, key, err)
		}
		var enc []string
		if err := json.Unmarshal([]byte(payload), &enc); err != nil {
			return nil, fmt.Errorf("preference %s/%s: %w", scope, key, err)
		}
		v, err := prefs.Decode(t, enc)
		if err != nil {
			return nil, fmt.Errorf("preference %s/%s: %w", scope, key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// Put implements prefs.Store.
func (p *PreferenceStore) Put(ctx context.Context, scope, key string, v prefs.Value) error {
	if p.readOnly {
		return core.ErrReadOnly
	}
	payload, err := json.Marshal(v.Encoded())
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, p.dialect.rebind(`INSERT INTO preferences (scope, key, type, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET type = excluded.type, payload = excluded.payload`),
		scope, key, v.Type().String(), string(payload))
	if err != nil {
		return fmt.Errorf("upsert preference %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete implements prefs.Store.
func (p *PreferenceStore) Delete(ctx context.Context, scope, key string) error {
	if p.readOnly {
		return core.ErrReadOnly
	}
	_, err := p.db.ExecContext(ctx,
		p.dialect.rebind(`DELETE FROM preferences WHERE scope = ? AND key = ?`), scope, key)
	if err != nil {
		return fmt.Errorf("delete preference %s/%s: %w", scope, key, err)
	}
	return nil
}

// Clear implements prefs.Store.
func (p *PreferenceStore) Clear(ctx context.Context, scope string) error {
	if p.readOnly {
		return core.ErrReadOnly
	}
	_, err := p.db.ExecContext(ctx,
		p.dialect.rebind(`DELETE FROM preferences WHERE scope = ?`), scope)
	if err != nil {
		return fmt.Errorf("clear preferences %s: %w", scope, err)
	}
	return nil
}

var _ prefs.Store = (*PreferenceStore)(nil)
