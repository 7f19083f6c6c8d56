package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Excerpt bounds keep the fingerprint sensitive to story progress without
// hashing entire manuscripts. Only the tail of the recent content matters:
// that is what gets injected into the prompt.
const (
	MaxRecentContentBytes = 4 * 1024
	MaxOutlineBytes       = 2 * 1024
)

// Request is the canonical descriptor of an AI-provider call, supplied by
// the provider client.
type Request struct {
	Provider string
	Endpoint string
	Model    string
	Params   map[string]string
}

// FingerprintContext carries the project fields actually injected into
// the prompt, supplied by the project manager. Any change to any field
// changes the fingerprint, so previously cached prompts miss
// automatically once the story progresses — correctness without explicit
// invalidation bookkeeping.
type FingerprintContext struct {
	ProjectID     string
	Genre         string
	Style         string
	Characters    []string
	RecentContent string
	Outline       string
}

// Fingerprint derives the cache key for a request in its current context:
// stable parameter ordering, sorted character roster, bounded excerpts,
// hashed with SHA-256.
func Fingerprint(req Request, fctx FingerprintContext) string {
	var b strings.Builder

	b.WriteString("v1\x00")
	writeField(&b, "provider", req.Provider)
	writeField(&b, "endpoint", req.Endpoint)
	writeField(&b, "model", req.Model)

	// Parameters in sorted key order so map iteration order never
	// changes the key.
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&b, "param:"+k, req.Params[k])
	}

	writeField(&b, "project", fctx.ProjectID)
	writeField(&b, "genre", fctx.Genre)
	writeField(&b, "style", fctx.Style)

	// Roster order is presentation detail, not prompt content.
	roster := make([]string, len(fctx.Characters))
	copy(roster, fctx.Characters)
	sort.Strings(roster)
	writeField(&b, "characters", strings.Join(roster, ","))

	writeField(&b, "recent", tailExcerpt(fctx.RecentContent, MaxRecentContentBytes))
	writeField(&b, "outline", headExcerpt(fctx.Outline, MaxOutlineBytes))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeField emits a length-prefixed field so no concatenation of values
// can collide with another field split.
func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s=%d:%s\x00", name, len(value), value)
}

// tailExcerpt keeps the trailing n bytes: the most recent prose is what
// the prompt actually sees.
func tailExcerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// headExcerpt keeps the leading n bytes.
func headExcerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
