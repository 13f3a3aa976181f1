package cache

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Cache is the shared response cache used by the geocoder and the weather
// fetcher. Values are opaque encoded payloads; each Set carries the TTL of its
// key class (current weather, forecast, geocode lookups). An entry older than
// its TTL is treated as absent regardless of physical presence.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a deterministic cache key: prefix + ":" + sorted k=v pairs.
// Sorting makes the key independent of argument insertion order.
func Key(prefix string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(prefix)
	for _, k := range keys {
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
