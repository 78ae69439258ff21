// Package registry implements AgentRegistry and SectorRegistry (spec.md
// §4.2): CRUD over Agent/Sector entities, invariant enforcement, and
// de-duplication, all routed through storage.AtomicUpdateDocument so the
// per-table lock closes every TOCTOU window a prior read-then-write would
// leave open (spec.md §9).
package registry

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sectormind/engine/pkg/utils"
)

var agentIDPattern = regexp.MustCompile(`^[A-Z0-9_]{1,32}$`)

// IsValidAgentID reports whether id satisfies spec.md §3's Agent.id shape:
// 1-32 chars, uppercase with underscores.
func IsValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// sanitizeAgentID coerces an oracle-proposed or user-proposed id into the
// required shape, falling back to a generated one if nothing usable
// remains.
func sanitizeAgentID(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	candidate := b.String()
	if len(candidate) > 32 {
		candidate = candidate[:32]
	}
	if candidate == "" {
		candidate = "AGENT_" + strings.ToUpper(utils.GenerateID(""))[:8]
	}
	return candidate
}

// uniqueAgentID returns base if it does not collide with any id in
// existing, otherwise appends a numeric suffix (truncating base as needed
// to stay within the 32-char limit) until a free id is found.
func uniqueAgentID(base string, existing map[string]bool) string {
	if !existing[base] {
		return base
	}
	for n := 2; n < 1000; n++ {
		suffix := "_" + strconv.Itoa(n)
		trimmed := base
		if len(trimmed)+len(suffix) > 32 {
			trimmed = trimmed[:32-len(suffix)]
		}
		candidate := trimmed + suffix
		if !existing[candidate] {
			return candidate
		}
	}
	return base + "_X"
}
