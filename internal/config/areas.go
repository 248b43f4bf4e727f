package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/incident-sync/internal/domain"
)

type areaFile struct {
	Areas []domain.Area `yaml:"areas"`
}

// LoadAreaCatalog reads the YAML catalog named by cfg, or returns the built-in one.
func LoadAreaCatalog(cfg AreasConfig) (*domain.AreaCatalog, error) {
	if cfg.File == "" {
		return domain.DefaultAreaCatalog(), nil
	}

	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("read area catalog: %w", err)
	}

	var file areaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse area catalog: %w", err)
	}
	for i, a := range file.Areas {
		if a.ID == "" {
			return nil, fmt.Errorf("area catalog entry %d has no id", i)
		}
	}
	if len(file.Areas) == 0 {
		return nil, fmt.Errorf("area catalog %s is empty", cfg.File)
	}
	return domain.NewAreaCatalog(file.Areas), nil
}
