package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Namespace names used by the daemon. Each behaves as an independent durable
// map; there are no cross-namespace transactions.
const (
	NamespaceAnswer        = "answer"
	NamespaceResourceState = "resource_state"
	NamespaceRunState      = "run_state"
	NamespaceArchivedRun   = "archived_run"
	NamespaceFFprobeCache  = "ffprobe_cache"
)

// Namespace exposes get/set/remove/keys/has over one named keyspace.
// Values are JSON-encoded.
type Namespace struct {
	store *Store
	name  string
}

// Namespace returns a handle for the named keyspace.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{store: s, name: name}
}

// Get unmarshals the value for key into out. It reports whether the key was
// present.
func (n *Namespace) Get(ctx context.Context, key string, out any) (bool, error) {
	ctx = ensureContext(ctx)
	var raw string
	err := n.store.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = ? AND key = ?", n.name, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", n.name, key, err)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return false, fmt.Errorf("decode %s/%s: %w", n.name, key, err)
		}
	}
	return true, nil
}

// Set stores value under key, replacing any existing entry.
func (n *Namespace) Set(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", n.name, key, err)
	}
	if err := n.store.execWithRetry(ctx,
		"INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?) ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		n.name, key, string(encoded),
	); err != nil {
		return fmt.Errorf("set %s/%s: %w", n.name, key, err)
	}
	return nil
}

// Remove deletes the entry for key. Removing an absent key is not an error.
func (n *Namespace) Remove(ctx context.Context, key string) error {
	if err := n.store.execWithRetry(ctx,
		"DELETE FROM kv WHERE namespace = ? AND key = ?", n.name, key,
	); err != nil {
		return fmt.Errorf("remove %s/%s: %w", n.name, key, err)
	}
	return nil
}

// Keys lists every key in the namespace.
func (n *Namespace) Keys(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := n.store.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE namespace = ? ORDER BY key", n.name,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", n.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan %s key: %w", n.name, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s keys: %w", n.name, err)
	}
	return keys, nil
}

// Has reports whether key exists in the namespace.
func (n *Namespace) Has(ctx context.Context, key string) (bool, error) {
	ctx = ensureContext(ctx)
	var one int
	err := n.store.db.QueryRowContext(ctx,
		"SELECT 1 FROM kv WHERE namespace = ? AND key = ?", n.name, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has %s/%s: %w", n.name, key, err)
	}
	return true, nil
}
