package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	v1 "github.com/dirpack/dirpack/apis/v1"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// ISO8601Basic is a URL-safe timestamp format without colons, suitable
// for filesystem paths produced by templated output names.
const ISO8601Basic = "20060102T150405Z"

// ParseArchiveJob parses a YAML (or JSON) job file and validates it.
// It returns a validated ArchiveJob or an error if parsing or
// validation fails.
func ParseArchiveJob(data []byte) (v1.ArchiveJob, error) {
	var job v1.ArchiveJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.ArchiveJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if err := defaultValidator.Struct(job); err != nil {
		return v1.ArchiveJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	return job, nil
}

// BuildVariables creates the variables map for template expansion. It
// includes built-in job variables and reads allow-listed environment
// variables; an allow-listed variable that is not set is an error.
func BuildVariables(job v1.ArchiveJob, allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}
