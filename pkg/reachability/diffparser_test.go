package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
)

func TestExtractFunctions_CallSiteInHunkHeader(t *testing.T) {
	files := []githubapi.CommitFile{
		{
			Filename: "src/parser.c",
			Patch: "@@ -120,7 +120,9 @@ static int parse_header(struct ctx *c, const uint8_t *buf, size_t len)\n" +
				"-    memcpy(dst, buf, len);\n" +
				"+    if (len > sizeof(dst)) return -1;\n" +
				"+    memcpy(dst, buf, len);\n",
		},
	}
	got := ExtractFunctions(files)
	assert.Equal(t, []string{"parse_header"}, got)
}

func TestExtractFunctions_BareIdentifierFallback(t *testing.T) {
	files := []githubapi.CommitFile{
		{
			Filename: "include/foo.h",
			Patch:    "@@ -10,3 +10,3 @@ struct foo_state\n-int x;\n+int y;\n",
		},
	}
	got := ExtractFunctions(files)
	assert.Equal(t, []string{"foo_state"}, got)
}

func TestExtractFunctions_IgnoresNonCFiles(t *testing.T) {
	files := []githubapi.CommitFile{
		{Filename: "CMakeLists.txt", Patch: "@@ -1,1 +1,1 @@ project(foo)\n-a\n+b\n"},
		{Filename: "docs/README.md", Patch: "@@ -1,1 +1,1 @@ intro(x)\n-a\n+b\n"},
	}
	got := ExtractFunctions(files)
	assert.Empty(t, got)
}

func TestExtractFunctions_DedupesAcrossHunks(t *testing.T) {
	files := []githubapi.CommitFile{
		{
			Filename: "src/io.c",
			Patch: "@@ -1,2 +1,2 @@ read_packet(int fd)\n-a\n+b\n" +
				"@@ -20,2 +20,2 @@ read_packet(int fd)\n-c\n+d\n",
		},
	}
	got := ExtractFunctions(files)
	assert.Equal(t, []string{"read_packet"}, got)
}

func TestIsCCppFile(t *testing.T) {
	assert.True(t, isCCppFile("src/foo.c"))
	assert.True(t, isCCppFile("src/Foo.CPP"))
	assert.True(t, isCCppFile("include/foo.hpp"))
	assert.False(t, isCCppFile("foo.py"))
	assert.False(t, isCCppFile("Makefile"))
}
