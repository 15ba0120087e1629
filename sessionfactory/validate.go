package sessionfactory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// ErrConfigurationConflict is returned when both Configuration and
// ConfigLocation are set.
var ErrConfigurationConflict = errors.New("sessionfactory: property 'configuration' and 'configLocation' can not specified with together")

// ErrNoDataSource is returned when DataSource is nil.
var ErrNoDataSource = errors.New("sessionfactory: property 'dataSource' is required")

var validate = validator.New()

type inputs struct {
	DataSource     datasource.DataSource `validate:"required"`
	Configuration  *engine.Configuration `validate:"excluded_with=ConfigLocation"`
	ConfigLocation string                `validate:"excluded_with=Configuration"`
}

// validate runs before anything is read or resolved.
func (b *Builder) validate() error {
	err := validate.Struct(inputs{
		DataSource:     b.DataSource,
		Configuration:  b.Configuration,
		ConfigLocation: b.ConfigLocation,
	})
	if err != nil {
		return formatValidationError(err)
	}
	if b.Configuration != nil && b.ConfigLocation != "" {
		return ErrConfigurationConflict
	}
	return nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("sessionfactory: %w", err)
	}
	var msgs []string
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			if e.Field() == "DataSource" {
				return ErrNoDataSource
			}
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "excluded_with":
			return ErrConfigurationConflict
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag()))
		}
	}
	return fmt.Errorf("sessionfactory: %s", strings.Join(msgs, "; "))
}
