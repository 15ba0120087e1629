package template

const defaultMeterName = "lingo-sqlmapper.template"

// Config controls telemetry of the session template.
type Config struct {
	MeterName      string `json:"meterName" yaml:"meterName"`
	MetricsEnabled *bool  `json:"metricsEnabled" yaml:"metricsEnabled"`
}

func (c Config) sanitized() Config {
	if c.MeterName == "" {
		c.MeterName = defaultMeterName
	}
	if c.MetricsEnabled == nil {
		enabled := true
		c.MetricsEnabled = &enabled
	}
	return c
}
