package analyzer

import "strings"

// canonicalVulnTypes is the fixed 11-type taxonomy the analyzer prompt
// requires.
var canonicalVulnTypes = map[string]bool{
	"buffer_overflow":   true,
	"use_after_free":    true,
	"integer_overflow":  true,
	"null_deref":        true,
	"injection":         true,
	"auth_bypass":       true,
	"info_leak":         true,
	"dos":               true,
	"race_condition":    true,
	"memory_corruption": true,
	"other":             true,
}

// vulnTypeAliases normalizes LLM output variants onto the canonical
// taxonomy.
var vulnTypeAliases = map[string]string{
	"heap_overflow":        "buffer_overflow",
	"stack_overflow":       "buffer_overflow",
	"buffer_overrun":       "buffer_overflow",
	"out_of_bounds_read":   "buffer_overflow",
	"out_of_bounds_write":  "buffer_overflow",
	"uaf":                  "use_after_free",
	"double_free":          "use_after_free",
	"dangling_pointer":     "use_after_free",
	"integer_overrun":      "integer_overflow",
	"int_overflow":         "integer_overflow",
	"null_pointer":         "null_deref",
	"npe":                  "null_deref",
	"null_pointer_deref":   "null_deref",
	"sql_injection":        "injection",
	"command_injection":    "injection",
	"format_string":        "injection",
	"privilege_escalation": "auth_bypass",
	"authentication_bypass": "auth_bypass",
	"information_disclosure": "info_leak",
	"data_leak":            "info_leak",
	"denial_of_service":    "dos",
	"resource_exhaustion":  "dos",
	"toctou":               "race_condition",
	"data_race":            "race_condition",
	"memory_corruption_bug": "memory_corruption",
	"type_confusion":       "memory_corruption",
}

// normalizeVulnType maps raw to the canonical taxonomy, falling back to
// "other" for anything unrecognized.
func normalizeVulnType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonicalVulnTypes[key] {
		return key
	}
	if alias, ok := vulnTypeAliases[key]; ok {
		return alias
	}
	return "other"
}

// severityAliases normalizes LLM severity output.
var severityAliases = map[string]string{
	"critical":  "critical",
	"high":      "high",
	"medium":    "medium",
	"moderate":  "medium",
	"low":       "low",
	"minor":     "low",
	"severe":    "critical",
	"important": "high",
}

// normalizeSeverity maps raw to one of the four severity levels, falling
// back to "medium" for anything unrecognized.
func normalizeSeverity(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := severityAliases[key]; ok {
		return v
	}
	return "medium"
}
