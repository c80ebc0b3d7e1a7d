package runner

import (
	"testing"

	v1 "github.com/dirpack/dirpack/apis/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	variables := map[string]string{"HOST": "web01", "JOB_NAME": "nightly"}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "no references", input: "plain.zip", want: "plain.zip"},
		{name: "single reference", input: "${HOST}.zip", want: "web01.zip"},
		{name: "multiple references", input: "${JOB_NAME}-${HOST}.zip", want: "nightly-web01.zip"},
		{name: "unknown variable fails", input: "${SECRET}.zip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input, variables)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandTemplates(t *testing.T) {
	job := v1.ArchiveJob{
		Kind:     "ArchiveJob",
		Metadata: v1.Metadata{Name: "${JOB_NAME}"},
		Spec: v1.ArchiveJobSpec{
			Root:   "/data/${HOST}",
			Output: "backups/${HOST}.zip",
			Format: "${HOST}", // untagged, must stay untouched
			Ignore: &v1.IgnoreSpec{
				Patterns: []string{"${HOST}/*.log"},
			},
		},
	}

	variables := map[string]string{"HOST": "web01", "JOB_NAME": "nightly"}
	require.NoError(t, ExpandTemplates(&job, variables))

	assert.Equal(t, "nightly", job.Metadata.Name)
	assert.Equal(t, "/data/web01", job.Spec.Root)
	assert.Equal(t, "backups/web01.zip", job.Spec.Output)
	assert.Equal(t, "${HOST}", job.Spec.Format)
	assert.Equal(t, []string{"web01/*.log"}, job.Spec.Ignore.Patterns)
}

func TestExpandTemplatesUnknownVariable(t *testing.T) {
	job := v1.ArchiveJob{
		Metadata: v1.Metadata{Name: "ok"},
		Spec: v1.ArchiveJobSpec{
			Root:   "/data",
			Output: "${NOT_ALLOWED}.zip",
		},
	}

	err := ExpandTemplates(&job, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_ALLOWED")
}

func TestBuildVariables(t *testing.T) {
	job := v1.ArchiveJob{Metadata: v1.Metadata{Name: "nightly"}}

	t.Run("builtins", func(t *testing.T) {
		variables, err := BuildVariables(job, nil)
		require.NoError(t, err)
		assert.Equal(t, "nightly", variables["JOB_NAME"])
		assert.NotEmpty(t, variables["JOB_DATE_ISO8601"])
		assert.NotEmpty(t, variables["JOB_DATE_RFC3339"])
	})

	t.Run("allowed env", func(t *testing.T) {
		t.Setenv("DIRPACK_TEST_HOST", "web01")

		variables, err := BuildVariables(job, []string{"DIRPACK_TEST_HOST"})
		require.NoError(t, err)
		assert.Equal(t, "web01", variables["DIRPACK_TEST_HOST"])
	})

	t.Run("unset env fails", func(t *testing.T) {
		_, err := BuildVariables(job, []string{"DIRPACK_TEST_UNSET"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DIRPACK_TEST_UNSET")
	})
}
