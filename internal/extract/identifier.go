package extract

import (
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// placeholders are identifiers that look well-formed but carry no identity.
var placeholders = map[string]struct{}{
	"P":         {},
	"PUnknown":  {},
	"PRedacted": {},
	"PNaN":      {},
	"Unknown":   {},
	"Redacted":  {},
}

// DeriveIdentifier maps a queue job_id onto the patient identifier handed to
// the inference call: "P" + job_id, unless job_id already carries the prefix.
// A blank job_id derives to "", which ValidIdentifier rejects.
func DeriveIdentifier(jobID string) string {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "P") {
		return id
	}
	return "P" + id
}

// ValidIdentifier reports whether id is worth sending to the inference endpoint.
func ValidIdentifier(id string) bool {
	if _, bad := placeholders[id]; bad {
		return false
	}
	return identifierRe.MatchString(id)
}
