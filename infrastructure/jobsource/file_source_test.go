package jobsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestJobs_SkipsCommentsAndBlankLines(t *testing.T) {
	// Arrange
	path := writeJobFile(t, `# production site collections
https://contoso.sharepoint.com/sites/A

https://contoso.sharepoint.com/sites/A/Shared Documents
  # indented comment
https://contoso.sharepoint.com/sites/B
`)

	// Act
	list, err := New(path).Jobs(context.Background())

	// Assert - indices follow job position, not file line.
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 0, list[0].Index)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/A", list[0].URL)
	assert.Equal(t, 1, list[1].Index)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/A/Shared Documents", list[1].URL)
	assert.Equal(t, 2, list[2].Index)
}

func TestJobs_InvalidLine_FailsWholeLoad(t *testing.T) {
	path := writeJobFile(t, `https://contoso.sharepoint.com/sites/A
not-a-url
https://contoso.sharepoint.com/sites/B
`)

	list, err := New(path).Jobs(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Nil(t, list)
}

func TestJobs_EmptyFile_IsAnError(t *testing.T) {
	path := writeJobFile(t, "# only comments here\n\n")

	_, err := New(path).Jobs(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no jobs")
}

func TestJobs_MissingFile_IsAnError(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.txt")).Jobs(context.Background())

	assert.Error(t, err)
}
