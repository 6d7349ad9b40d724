package config

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/cubeflix/csh/internal/ratelimit"
)

// WriteBack rewrites configPath with the subset of settings named by
// touched, the Go equivalent of runtime.py's ServerRuntime.finish():
// re-read the original file so untouched keys survive unmodified,
// overlay only what the admin commands actually changed this run,
// then write the file back in full. A failure here is non-fatal to
// the shutdown sequence — the reference implementation only logs it —
// so callers should log the returned error rather than abort.
func WriteBack(configPath string, touched []string, current map[string]func() any) error {
	if configPath == "" || len(touched) == 0 {
		return nil
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("config: reading %s for write-back: %w", configPath, err)
	}
	doc := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("config: parsing %s for write-back: %w", configPath, err)
		}
	}

	for _, name := range touched {
		getter, ok := current[name]
		if !ok {
			continue
		}
		doc[name] = getter()
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding %s for write-back: %w", configPath, err)
	}
	return os.WriteFile(configPath, out, 0o644)
}

// RateLimitToJSON converts a rule set into the [[window, max], ...]
// shape the config file's "rate_limit" key expects.
func RateLimitToJSON(rules []ratelimit.Rule) any {
	if rules == nil {
		return nil
	}
	out := make([][2]int, len(rules))
	for i, r := range rules {
		out[i] = [2]int{r.WindowSeconds, r.MaxRequests}
	}
	return out
}
