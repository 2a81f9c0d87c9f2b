package cli

import (
	"fmt"

	"github.com/cohortgen/cohortgen/internal/config"
	"github.com/cohortgen/cohortgen/internal/demographics"
	"github.com/cohortgen/cohortgen/internal/engine"
	"github.com/cohortgen/cohortgen/internal/loader"
	"github.com/cohortgen/cohortgen/internal/pathway"
)

// loadModules validates and decodes a module directory.
func loadModules(dir string, lenient bool) (map[string]*pathway.Module, error) {
	ld, err := loader.New(loader.Options{LenientWeights: lenient})
	if err != nil {
		return nil, err
	}
	return ld.LoadDir(dir)
}

// buildGenerator assembles a generator from a validated run config.
func buildGenerator(cfg config.Config) (*engine.Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	modules, err := loadModules(cfg.ModulesDir, cfg.LenientWeights)
	if err != nil {
		return nil, fmt.Errorf("loading modules: %w", err)
	}

	end, err := cfg.EndDate()
	if err != nil {
		return nil, err
	}

	model, err := demographics.New(demographics.Options{
		End:       end,
		MinAge:    cfg.MinAge,
		MaxAge:    cfg.MaxAge,
		MaleRatio: cfg.MaleRatio,
	})
	if err != nil {
		return nil, err
	}

	unmatched := engine.UnmatchedFails
	if cfg.UnmatchedEndsModule {
		unmatched = engine.UnmatchedEndsModule
	}

	return engine.NewGenerator(engine.Config{
		Modules:        modules,
		Profiles:       model,
		Seed:           cfg.Seed,
		End:            end,
		Step:           cfg.Step(),
		StepBudget:     cfg.StepBudget,
		LenientWeights: cfg.LenientWeights,
		Unmatched:      unmatched,
		OnlyLiving:     cfg.OnlyLiving,
		MaxAttempts:    cfg.MaxAttempts,
	})
}

// moduleNames lists the generator's module set in evaluation order.
func moduleNames(g *engine.Generator) []string {
	mods := g.Modules()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	return names
}

// runConfig merges the optional config file under the command's flag
// overrides. apply runs after file loading so changed flags win.
func runConfig(path string, apply func(*config.Config)) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if apply != nil {
		apply(&cfg)
	}
	return cfg, nil
}
