package runner

import (
	"github.com/dirpack/dirpack/internal/archive"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BuildContainer creates a DI container with the runner's collaborators
// registered. Dependencies are lazily initialized when first requested.
func BuildContainer(logger *zap.Logger) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, logger)

	do.Provide(injector, func(i do.Injector) (afero.Fs, error) {
		return afero.NewOsFs(), nil
	})

	do.Provide(injector, func(i do.Injector) (*archive.Registry, error) {
		return archive.DefaultRegistry(), nil
	})

	return injector
}

// OptionsFromContainer resolves runner Options from a DI container.
// Observers stay nil; callers attach their own.
func OptionsFromContainer(injector do.Injector) Options {
	return Options{
		Fs:       do.MustInvoke[afero.Fs](injector),
		Registry: do.MustInvoke[*archive.Registry](injector),
	}
}
