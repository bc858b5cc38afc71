package agent

import "encoding/json"

// dedupCache remembers tool results within a single turn so repeated
// identical calls replay the first result instead of re-invoking the
// tool. It is discarded when the turn ends.
type dedupCache struct {
	results map[string]string
}

func newDedupCache() *dedupCache {
	return &dedupCache{results: make(map[string]string)}
}

// dedupKey canonicalizes a call so argument key order does not matter.
// json.Marshal serializes map keys sorted.
func dedupKey(toolName string, args map[string]interface{}) string {
	serialized, err := json.Marshal(args)
	if err != nil {
		serialized = []byte("{}")
	}
	return toolName + "\x00" + string(serialized)
}

func (c *dedupCache) get(key string) (string, bool) {
	result, ok := c.results[key]
	return result, ok
}

func (c *dedupCache) put(key, result string) {
	c.results[key] = result
}
