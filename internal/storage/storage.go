// Package storage opens the record repositories used by imports.
//
// Backends register a Factory for their driver name at init time; import
// storage/all to enable every built-in backend. The SQL backends share one
// table, keyed by internal id and unique per (entity, external_id), holding
// record fields as JSON.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/schema"
)

// Config selects and configures a backend.
type Config struct {
	Driver   string // memory, postgres or sqlite
	DSN      string
	MaxConns int
}

// Factory opens a backend. The returned close function releases its
// connections.
type Factory func(ctx context.Context, cfg Config, schemas []schema.Schema) (importer.Repositories, func(), error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for driver.
func Register(driver string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(driver)] = f
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open opens repositories for every schema in registry.
func Open(ctx context.Context, cfg Config, registry *schema.Registry) (importer.Repositories, func(), error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(cfg.Driver)]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("storage: unknown driver %q (registered: %s)", cfg.Driver, strings.Join(Drivers(), ", "))
	}
	return f(ctx, cfg, registry.All())
}

// Table is the table the SQL backends store records in.
const Table = "import_records"

// EncodeFields renders record fields as JSON. Times are written in RFC 3339.
func EncodeFields(fields map[string]any) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// DecodeFields parses JSON written by EncodeFields. Whole numbers come back
// as int64, other numbers as float64.
func DecodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	for k, v := range fields {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			fields[k] = i
		} else if f, err := n.Float64(); err == nil {
			fields[k] = f
		}
	}
	return fields, nil
}

// ExternalIDField returns each schema's external id field by entity.
func ExternalIDField(schemas []schema.Schema) map[schema.EntityType]string {
	out := make(map[schema.EntityType]string, len(schemas))
	for _, s := range schemas {
		out[s.Entity] = s.ExternalIDField
	}
	return out
}

// ExternalIDText renders an external id value the way lookups compare it.
func ExternalIDText(v any) string {
	return infer.Stringify(v)
}
