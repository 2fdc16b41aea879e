package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

func TestApplyReferences_ClosesKeyword(t *testing.T) {
	msg := "Adds bounds check before the copy loop"
	e := &models.Event{Title: "Fix out-of-bounds read", Message: &msg}
	msg2 := "Closes #482 by validating the length argument."
	e.Message = &msg2

	ApplyReferences(e, "libfoo", "libfoo")

	require.NotNil(t, e.RelatedIssueRef)
	assert.Equal(t, "482", *e.RelatedIssueRef)
	assert.Equal(t, "https://github.com/libfoo/libfoo/issues/482", *e.RelatedIssueURL)
	n, ok := parseIssueRefInt(e.RelatedIssueRef)
	assert.True(t, ok)
	assert.Equal(t, 482, n)
}

func TestApplyReferences_FixesAndResolvesCaseInsensitive(t *testing.T) {
	for _, kw := range []string{"fixes", "FIXES", "Resolves", "resolves"} {
		msg := kw + " #7"
		e := &models.Event{Title: "patch", Message: &msg}
		ApplyReferences(e, "o", "r")
		require.NotNil(t, e.RelatedIssueRef, "keyword %q should match", kw)
		assert.Equal(t, "7", *e.RelatedIssueRef)
	}
}

func TestApplyReferences_InlinePRInTitleOnly(t *testing.T) {
	e := &models.Event{Title: "Harden parser against malformed input (#991)"}
	ApplyReferences(e, "owner", "repo")

	require.NotNil(t, e.RelatedPRRef)
	assert.Equal(t, "991", *e.RelatedPRRef)
	assert.Equal(t, "https://github.com/owner/repo/pull/991", *e.RelatedPRURL)
	assert.Nil(t, e.RelatedIssueRef)
}

func TestApplyReferences_InlinePRInBodyIsIgnored(t *testing.T) {
	msg := "See also (#12) for context."
	e := &models.Event{Title: "Unrelated title", Message: &msg}
	ApplyReferences(e, "owner", "repo")
	assert.Nil(t, e.RelatedPRRef)
}

func TestApplyReferences_NoMatch(t *testing.T) {
	e := &models.Event{Title: "Bump dependency version"}
	ApplyReferences(e, "o", "r")
	assert.Nil(t, e.RelatedIssueRef)
	assert.Nil(t, e.RelatedPRRef)
}

func TestParseIssueRefInt_NilRef(t *testing.T) {
	n, ok := parseIssueRefInt(nil)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
}
