package v1

// ArchiveJob is the top-level document of a dirpack job file.
type ArchiveJob struct {
	Kind     string         `yaml:"kind" json:"kind" validate:"required,eq=ArchiveJob"`
	Metadata Metadata       `yaml:"metadata" json:"metadata" validate:"required"`
	Spec     ArchiveJobSpec `yaml:"spec" json:"spec" validate:"required"`
}

// Metadata carries identifying information about the job.
type Metadata struct {
	Name string `yaml:"name" json:"name" validate:"required" template:""`
}

// ArchiveJobSpec describes a single archive operation: which tree to walk,
// where the container goes, and how entries are selected.
type ArchiveJobSpec struct {
	// Root is the directory to archive. Must exist and be readable.
	Root string `yaml:"root" json:"root" validate:"required" template:""`

	// Output is the path of the container file to produce. The format is
	// derived from its extension unless Format is set explicitly.
	Output string `yaml:"output" json:"output" validate:"required" template:""`

	// Format selects the container format: zip, tar.gz, tar.zst or 7z.
	// Empty means "infer from the output extension".
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Ignore configures entry selection.
	Ignore *IgnoreSpec `yaml:"ignore,omitempty" json:"ignore,omitempty"`

	// Password is accepted for compatibility with other archivers but is
	// never applied: dirpack does not encrypt containers. A warning is
	// emitted when it is set.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// IgnoreSpec configures which files are excluded from the archive.
type IgnoreSpec struct {
	// DisableGitignore skips loading <root>/.gitignore.
	DisableGitignore bool `yaml:"disable_gitignore,omitempty" json:"disable_gitignore,omitempty"`

	// Patterns are additional gitignore-syntax rules, evaluated after the
	// rules loaded from the ignore file.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty" template:""`
}
