package parser

import (
	"strconv"
	"strings"
)

// RawLogScraper extracts `key: value` pairs from Anchor "Program log:" lines
// when instruction data is missing or undecodable. Grounded in the source's
// documented log-scraping fallback (spec.md §4.2) and the general
// pattern used across the Solana bot examples of pulling structured
// key/value pairs out of program logs.
type RawLogScraper struct {
	fields map[string]string
}

// ScrapeLogs parses every line of logs looking for "key: value" pairs,
// tolerating the "Program log: " prefix Anchor adds.
func ScrapeLogs(logs []string) RawLogScraper {
	fields := make(map[string]string)
	for _, line := range logs {
		trimmed := strings.TrimPrefix(line, "Program log: ")
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		val := strings.TrimSpace(trimmed[idx+1:])
		if key == "" || val == "" {
			continue
		}
		fields[key] = val
	}
	return RawLogScraper{fields: fields}
}

// String returns the raw string value for key, if present.
func (s RawLogScraper) String(key string) (string, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Uint64 parses the value for key as a base-10 uint64.
func (s RawLogScraper) Uint64(key string) (uint64, bool) {
	v, ok := s.fields[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Contains reports whether any log line contains needle verbatim, used to
// detect instruction-signature markers like "Instruction: Buy".
func Contains(logs []string, needle string) bool {
	for _, line := range logs {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}
