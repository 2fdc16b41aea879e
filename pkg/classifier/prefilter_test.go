package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

func TestPrefilter_TagEventIsOther(t *testing.T) {
	e := &models.Event{Type: models.EventTypeTag, Title: "v1.2.3", Ref: "v1.2.3"}
	r := prefilter(e)
	assert.True(t, r.hit)
	assert.Equal(t, models.ClassificationOther, r.classification)
	assert.Equal(t, 0.95, r.confidence)
}

func TestPrefilter_BotAuthorIsOther(t *testing.T) {
	author := "dependabot[bot]"
	e := &models.Event{Type: models.EventTypeCommit, Title: "Bump foo from 1.0 to 1.1", Author: &author}
	r := prefilter(e)
	assert.True(t, r.hit)
	assert.Equal(t, models.ClassificationOther, r.classification)
}

func TestPrefilter_SecurityKeywordForcesLLMPath(t *testing.T) {
	cases := []string{
		"fix: CVE-2024-12345 heap overflow",
		"fix use-after-free in parser",
		"fix buffer overflow in decoder",
		"patch authbypass in login handler",
	}
	for _, title := range cases {
		e := &models.Event{Type: models.EventTypeCommit, Title: title}
		r := prefilter(e)
		assert.False(t, r.hit, "title %q should force the LLM path", title)
	}
}

func TestPrefilter_ConventionalPrefixTable(t *testing.T) {
	tests := []struct {
		title          string
		classification models.EventClassification
		confidence     float64
	}{
		{"fix: off-by-one in buffer copy", models.ClassificationNormalBugfix, 0.70},
		{"feat: add zstd decoder", models.ClassificationFeature, 0.80},
		{"refactor: split parser into modules", models.ClassificationRefactor, 0.80},
		{"docs: update README", models.ClassificationOther, 0.85},
		{"chore(deps): bump toolchain", models.ClassificationOther, 0.85},
	}
	for _, tt := range tests {
		e := &models.Event{Type: models.EventTypeCommit, Title: tt.title}
		r := prefilter(e)
		assert.True(t, r.hit, "title %q should hit", tt.title)
		assert.Equal(t, tt.classification, r.classification, tt.title)
		assert.Equal(t, tt.confidence, r.confidence, tt.title)
	}
}

func TestPrefilter_UnrecognizedTitleFallsThrough(t *testing.T) {
	e := &models.Event{Type: models.EventTypeCommit, Title: "Reorganize vendor directory layout"}
	r := prefilter(e)
	assert.False(t, r.hit)
}

func TestIsBotAuthor(t *testing.T) {
	assert.True(t, isBotAuthor("dependabot[bot]"))
	assert.True(t, isBotAuthor("renovate[bot]"))
	assert.True(t, isBotAuthor("Mergify[bot]"))
	assert.False(t, isBotAuthor("octocat"))
}
