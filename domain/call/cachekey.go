package call

import (
	"net/url"

	json "github.com/goccy/go-json"
)

// CacheKey derives the response-cache key for an endpoint call.
// Map keys are emitted in sorted order, so params that differ only in key
// order share a cache entry.
func CacheKey(endpointKey string, params map[string]any) string {
	if len(params) == 0 {
		return CachePrefix(endpointKey) + "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return CachePrefix(endpointKey) + Stringify(params)
	}
	return CachePrefix(endpointKey) + string(data)
}

// CachePrefix is the prefix shared by every cache key of an endpoint. The
// endpoint key is escaped so a ":" inside it cannot reach into another
// endpoint's keys.
func CachePrefix(endpointKey string) string {
	return url.QueryEscape(endpointKey) + ":"
}
