package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindings_SingleObject(t *testing.T) {
	result, err := parseFindings(`{"vuln_type": "buffer_overflow", "severity": "high", "summary": "oob write"}`)
	require.NoError(t, err)
	findings := result.([]finding)
	require.Len(t, findings, 1)
	assert.Equal(t, "buffer_overflow", findings[0].VulnType)
}

func TestParseFindings_Array(t *testing.T) {
	result, err := parseFindings(`[{"vuln_type": "use_after_free", "severity": "critical"}, {"vuln_type": "dos", "severity": "low"}]`)
	require.NoError(t, err)
	findings := result.([]finding)
	require.Len(t, findings, 2)
	assert.Equal(t, "use_after_free", findings[0].VulnType)
	assert.Equal(t, "dos", findings[1].VulnType)
}

func TestParseFindings_InvalidJSON(t *testing.T) {
	_, err := parseFindings("not json at all")
	assert.Error(t, err)
}

func TestIsWellFormedJSONValue(t *testing.T) {
	assert.True(t, isWellFormedJSONValue(`{"vuln_type": "dos"}`))
	assert.True(t, isWellFormedJSONValue(`[{"vuln_type": "dos"}]`))
	assert.False(t, isWellFormedJSONValue("still thinking..."))
}

func TestStrPtrOrNil(t *testing.T) {
	assert.Nil(t, strPtrOrNil(""))
	require.NotNil(t, strPtrOrNil("x"))
	assert.Equal(t, "x", *strPtrOrNil("x"))
}
