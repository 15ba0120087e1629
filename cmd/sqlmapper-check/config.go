package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/sessionfactory"
)

// config is the sqlmapper-check configuration file. ${VAR} references are
// expanded from the environment before decoding.
type config struct {
	Datasource     datasource.Config     `yaml:"datasource"`
	SessionFactory sessionfactory.Config `yaml:"sessionFactory"`
	// ResourceDir is the root of the mapper resources, relative to the
	// configuration file.
	ResourceDir string     `yaml:"resourceDir" validate:"required"`
	Scan        scanConfig `yaml:"scan"`
}

type scanConfig struct {
	// Dir is the module directory packages are loaded from, relative to the
	// configuration file.
	Dir          string   `yaml:"dir"`
	Patterns     []string `yaml:"patterns" validate:"required,min=1,dive,required"`
	BasePackages []string `yaml:"basePackages" validate:"required,min=1,dive,required"`
	Annotation   string   `yaml:"annotation" validate:"omitempty,alphanum"`
}

var validate = validator.New()

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(path, err)
	}

	base := filepath.Dir(path)
	cfg.ResourceDir = resolvePath(base, cfg.ResourceDir)
	if cfg.Scan.Dir == "" {
		cfg.Scan.Dir = "."
	}
	cfg.Scan.Dir = resolvePath(base, cfg.Scan.Dir)
	return &cfg, nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func formatValidationError(path string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid config %s: %s", path, strings.Join(msgs, "; "))
}
