package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVulnType_Canonical(t *testing.T) {
	assert.Equal(t, "buffer_overflow", normalizeVulnType("buffer_overflow"))
	assert.Equal(t, "use_after_free", normalizeVulnType("Use_After_Free"))
}

func TestNormalizeVulnType_Aliases(t *testing.T) {
	assert.Equal(t, "buffer_overflow", normalizeVulnType("heap_overflow"))
	assert.Equal(t, "buffer_overflow", normalizeVulnType("out_of_bounds_write"))
	assert.Equal(t, "use_after_free", normalizeVulnType("uaf"))
	assert.Equal(t, "use_after_free", normalizeVulnType("double_free"))
	assert.Equal(t, "injection", normalizeVulnType("sql_injection"))
	assert.Equal(t, "auth_bypass", normalizeVulnType("privilege_escalation"))
	assert.Equal(t, "info_leak", normalizeVulnType("information_disclosure"))
	assert.Equal(t, "dos", normalizeVulnType("denial_of_service"))
	assert.Equal(t, "race_condition", normalizeVulnType("toctou"))
	assert.Equal(t, "memory_corruption", normalizeVulnType("type_confusion"))
}

func TestNormalizeVulnType_UnrecognizedFallsBackToOther(t *testing.T) {
	assert.Equal(t, "other", normalizeVulnType("something_weird"))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, "critical", normalizeSeverity("critical"))
	assert.Equal(t, "critical", normalizeSeverity("severe"))
	assert.Equal(t, "high", normalizeSeverity("important"))
	assert.Equal(t, "medium", normalizeSeverity("moderate"))
	assert.Equal(t, "low", normalizeSeverity("minor"))
}

func TestNormalizeSeverity_UnrecognizedFallsBackToMedium(t *testing.T) {
	assert.Equal(t, "medium", normalizeSeverity("unknown"))
}
