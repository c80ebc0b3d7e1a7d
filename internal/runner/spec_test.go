package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchiveJob(t *testing.T) {
	t.Run("valid job", func(t *testing.T) {
		job, err := ParseArchiveJob([]byte(`
kind: ArchiveJob
metadata:
  name: nightly-backup
spec:
  root: /data/projects
  output: backups/projects.tar.gz
  ignore:
    patterns:
      - "*.log"
      - "tmp/"
`))
		require.NoError(t, err)
		assert.Equal(t, "nightly-backup", job.Metadata.Name)
		assert.Equal(t, "/data/projects", job.Spec.Root)
		assert.Equal(t, "backups/projects.tar.gz", job.Spec.Output)
		require.NotNil(t, job.Spec.Ignore)
		assert.Equal(t, []string{"*.log", "tmp/"}, job.Spec.Ignore.Patterns)
	})

	t.Run("wrong kind fails validation", func(t *testing.T) {
		_, err := ParseArchiveJob([]byte(`
kind: CollectJob
metadata:
  name: x
spec:
  root: /data
  output: out.zip
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to validate job")
	})

	t.Run("missing output fails validation", func(t *testing.T) {
		_, err := ParseArchiveJob([]byte(`
kind: ArchiveJob
metadata:
  name: x
spec:
  root: /data
`))
		require.Error(t, err)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		_, err := ParseArchiveJob([]byte(`{kind: [`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal")
	})
}
