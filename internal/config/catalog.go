package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// LoadModelCatalog reads the §4.6/§6 model catalog file. The catalog is
// the single source of truth for model names (§6); a hard-coded model
// string anywhere outside of this file is a defect.
func LoadModelCatalog(path string) (*types.ModelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration("read model catalog %q: %v", path, err)
	}
	var cat types.ModelCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, errs.Configuration("parse model catalog %q: %v", path, err)
	}
	if err := ValidateCatalog(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// ValidateCatalog fails startup (§7 "Configuration" errors are fatal at
// startup) when the catalog names a primary or fallback model that has no
// metadata entry — an unknown model is exactly the class of error §4.6's
// IncompatibleModel guard exists to avoid discovering at request time.
func ValidateCatalog(cat *types.ModelCatalog) error {
	if cat.Primary == "" {
		return errs.Configuration("model catalog: primary model is required")
	}
	if _, ok := cat.Models[cat.Primary]; !ok {
		return errs.Configuration("model catalog: primary model %q has no metadata entry", cat.Primary)
	}
	for _, fb := range cat.Fallbacks {
		if _, ok := cat.Models[fb]; !ok {
			return errs.Configuration("model catalog: fallback model %q has no metadata entry", fb)
		}
	}
	return nil
}
