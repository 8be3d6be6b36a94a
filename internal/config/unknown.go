package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid dotted keys in the config file.
var knownKeys = map[string]bool{
	"server": true, "server.listen": true, "server.mode": true, "server.drive": true,
	"server.favicon_url": true, "server.shutdown_timeout": true,
	"server.cors": true, "server.cors.enabled": true, "server.cors.allowed_origins": true,
	"server.cors.allowed_methods": true, "server.cors.allowed_headers": true,
	"server.cors.exposed_headers": true, "server.cors.allow_credentials": true, "server.cors.max_age": true,
	"store": true, "store.backend": true, "store.path": true, "store.dsn": true, "store.table": true,
	"oauth": true, "oauth.authority": true, "oauth.tenant": true, "oauth.redirect_uri": true, "oauth.scopes": true,
	"graph": true, "graph.base_url": true,
	"listing": true, "listing.fields": true, "listing.limit": true,
	"logging": true, "logging.level": true, "logging.format": true, "logging.file": true,
	"logging.retention_days": true,
	"network": true, "network.request_timeout": true,
	"display_timezone": true,
}

// knownKeysList is the sorted slice form of knownKeys for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates have
// the same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. Keys
// nested under an already reported key are not reported again.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}

	sort.Strings(keys)

	var (
		errs     []error
		reported []string
	)

	for _, keyStr := range keys {
		if underAny(keyStr, reported) {
			continue
		}

		reported = append(reported, keyStr)
		errs = append(errs, buildKeyError(keyStr))
	}

	return errors.Join(errs...)
}

func underAny(key string, parents []string) bool {
	for _, p := range parents {
		if strings.HasPrefix(key, p+".") {
			return true
		}
	}

	return false
}

// buildKeyError creates a descriptive error for an unknown key, optionally
// suggesting the closest known key.
func buildKeyError(keyStr string) error {
	suggestion := closestMatch(keyStr, knownKeysList)
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", keyStr, suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization; no full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
