package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// schema identifies the on-disk shape of a collection value.
type schema int

const (
	schemaEmpty       schema = iota // key absent, blank, or null
	schemaLegacyArray               // [record, ...] written by older releases
	schemaMap                       // {id: record, ...}
	schemaCorrupt                   // anything else
)

func (v schema) String() string {
	switch v {
	case schemaEmpty:
		return "empty"
	case schemaLegacyArray:
		return "legacy-array"
	case schemaMap:
		return "map"
	default:
		return "corrupt"
	}
}

func detectSchema(data []byte) schema {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return schemaEmpty
	case trimmed[0] == '[':
		return schemaLegacyArray
	case trimmed[0] == '{':
		return schemaMap
	default:
		return schemaCorrupt
	}
}

// upgradeLegacyArray converts the array form to the map form. Elements
// without a non-empty string id are dropped; a repeated id keeps the last
// element.
func upgradeLegacyArray(data []byte) (map[string]json.RawMessage, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, err
	}
	out := make(map[string]json.RawMessage, len(items))
	dropped := 0
	for _, item := range items {
		var ref struct {
			ID any `json:"id"`
		}
		if err := json.Unmarshal(item, &ref); err != nil {
			dropped++
			continue
		}
		id, ok := ref.ID.(string)
		if !ok || id == "" {
			dropped++
			continue
		}
		out[id] = item
	}
	return out, dropped, nil
}

// readRaw loads the collection under key as id -> raw record. Failures read
// as an empty collection. A legacy array is upgraded and rewritten in map
// form before returning. Callers hold s.mu.
func (s *Store) readRaw(key string) map[string]json.RawMessage {
	empty := map[string]json.RawMessage{}
	if !s.attached {
		return empty
	}
	data, ok, err := s.medium.Get(key)
	if err != nil {
		s.logger.Warn("reading collection", zap.String("key", key), zap.Error(err))
		return empty
	}
	if !ok {
		return empty
	}

	switch v := detectSchema(data); v {
	case schemaEmpty:
		return empty
	case schemaMap:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn("corrupted collection reads as empty", zap.String("key", key), zap.Error(err))
			return empty
		}
		return m
	case schemaLegacyArray:
		m, dropped, err := upgradeLegacyArray(data)
		if err != nil {
			s.logger.Warn("corrupted collection reads as empty", zap.String("key", key), zap.Error(err))
			return empty
		}
		s.logger.Info("upgrading legacy collection",
			zap.String("key", key), zap.Int("records", len(m)), zap.Int("dropped", dropped))
		if err := s.writeRaw(key, m); err != nil {
			s.logger.Warn("rewriting upgraded collection", zap.String("key", key), zap.Error(err))
		}
		return m
	default:
		s.logger.Warn("corrupted collection reads as empty", zap.String("key", key), zap.Stringer("schema", v))
		return empty
	}
}

func (s *Store) writeRaw(key string, m map[string]json.RawMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.medium.Set(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// readCollection decodes every record under key. Records that fail to
// decode are skipped. Callers hold s.mu.
func readCollection[T any](s *Store, key string) map[string]T {
	raw := s.readRaw(key)
	out := make(map[string]T, len(raw))
	for id, rec := range raw {
		if detectSchema(rec) != schemaMap {
			s.logger.Debug("skipping malformed record", zap.String("key", key), zap.String("id", id))
			continue
		}
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			s.logger.Debug("skipping malformed record",
				zap.String("key", key), zap.String("id", id), zap.Error(err))
			continue
		}
		out[id] = v
	}
	return out
}

// writeCollection replaces the collection under key. Callers hold s.mu.
func writeCollection[T any](s *Store, key string, items map[string]T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.medium.Set(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
