// Package config loads and validates the engine configuration shared by the
// backtest and live drivers.
package config

import (
	"encoding/json"
	"os"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/decision"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/internal/indicator"
	"github.com/rxtech-lab/argo-strategy-engine/internal/risk"
	"github.com/rxtech-lab/argo-strategy-engine/internal/signal"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"gopkg.in/yaml.v2"
)

type ReportConfig struct {
	// PeriodsPerYear annualizes the Sharpe ratio. 0 derives it from the interval.
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year" jsonschema:"title=Periods Per Year,description=Bars per year used to annualize the Sharpe ratio. 0 derives it from the interval,minimum=0,default=0" validate:"gte=0"`
	// Timezone decides where calendar days start for the daily limits.
	Timezone string `yaml:"timezone" json:"timezone" jsonschema:"title=Timezone,description=IANA timezone for daily counter resets,default=UTC" validate:"required"`
}

// TimeRange optionally restricts the bars read from a source.
type TimeRange struct {
	Start optional.Option[time.Time] `yaml:"start" json:"start" jsonschema:"title=Start,description=Optional inclusive start of the replay"`
	End   optional.Option[time.Time] `yaml:"end" json:"end" jsonschema:"title=End,description=Optional exclusive end of the replay"`
}

// UnmarshalYAML maps missing bounds to None.
func (r *TimeRange) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type timeRange struct {
		Start *time.Time `yaml:"start"`
		End   *time.Time `yaml:"end"`
	}

	var raw timeRange
	if err := unmarshal(&raw); err != nil {
		return err
	}

	r.Start = optional.None[time.Time]()
	r.End = optional.None[time.Time]()

	if raw.Start != nil {
		r.Start = optional.Some(*raw.Start)
	}

	if raw.End != nil {
		r.End = optional.Some(*raw.End)
	}

	return nil
}

// EngineConfig is the complete configuration of one engine instance.
type EngineConfig struct {
	Symbol      string  `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol,description=Trading pair or ticker,default=ETHUSDT" validate:"required"`
	Interval    string  `yaml:"interval" json:"interval" jsonschema:"title=Interval,description=Bar interval such as 1m or 5m or 1h,default=5m" validate:"required"`
	InitialCash float64 `yaml:"initial_cash" json:"initial_cash" jsonschema:"title=Initial Cash,description=Starting cash in quote currency,exclusiveMinimum=0,default=1000" validate:"gt=0"`
	// RunID seeds order IDs. A random one is generated when empty.
	RunID    string    `yaml:"run_id" json:"run_id" jsonschema:"title=Run ID,description=Identifier that makes order IDs reproducible"`
	Strategy string    `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy,description=Registered strategy name,default=macd_bollinger" validate:"required"`
	Range    TimeRange `yaml:"range" json:"range" jsonschema:"title=Range,description=Optional replay window"`

	Indicator indicator.Config `yaml:"indicator" json:"indicator"`
	Decision  decision.Config  `yaml:"decision" json:"decision"`
	Signal    signal.Config    `yaml:"signal" json:"signal"`
	Risk      risk.Config      `yaml:"risk" json:"risk"`
	Execution execution.Config `yaml:"execution" json:"execution"`
	Report    ReportConfig     `yaml:"report" json:"report"`
}

// DefaultConfig trades ETHUSDT 5 minute bars with 1000 of starting cash.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		Symbol:      "ETHUSDT",
		Interval:    "5m",
		InitialCash: 1000,
		RunID:       "",
		Strategy:    strategy.MACDBollingerName,
		Range:       TimeRange{Start: optional.None[time.Time](), End: optional.None[time.Time]()},
		Indicator:   indicator.DefaultConfig(),
		Decision:    decision.DefaultConfig(),
		Signal:      signal.DefaultConfig(),
		Risk:        risk.DefaultConfig(),
		Execution:   execution.DefaultConfig(),
		Report:      ReportConfig{PeriodsPerYear: 0, Timezone: "UTC"},
	}
}

// EmptyConfig returns a config with every field zeroed. It fails validation.
func EmptyConfig() EngineConfig {
	return EngineConfig{
		Symbol:      "",
		Interval:    "",
		InitialCash: 0,
		RunID:       "",
		Strategy:    "",
		Range:       TimeRange{Start: optional.None[time.Time](), End: optional.None[time.Time]()},
		Indicator:   indicator.Config{},
		Decision:    decision.Config{},
		Signal:      signal.Config{},
		Risk:        risk.Config{},
		Execution:   execution.Config{},
		Report:      ReportConfig{},
	}
}

// TestConfig is DefaultConfig without fees and with a fixed run id.
func TestConfig() EngineConfig {
	config := DefaultConfig()
	config.RunID = "test-run"
	config.Execution.FeeModel = commission_fee.BrokerZero
	config.Execution.FeeRate = 0

	return config
}

// Load reads a YAML config file on top of DefaultConfig and validates it.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (EngineConfig, error) {
	config := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return EngineConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return EngineConfig{}, err
	}

	return config, nil
}

// Validate runs the field rules and the cross-field checks. Every failure is a
// configuration error.
func (c EngineConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid engine config", err)
	}

	if _, err := c.IntervalDuration(); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Range.Start.IsSome() && c.Range.End.IsSome() && !c.Range.Start.Unwrap().Before(c.Range.End.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidPeriod, "range start must be before range end")
	}

	if err := c.StrategyConfig().Validate(); err != nil {
		return err
	}

	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if err := c.Execution.Validate(); err != nil {
		return err
	}

	if c.Decision.Filter != decision.FilterTypeNeutral && c.Decision.ModelPath == "" {
		return errors.Newf(errors.ErrCodeMissingParameter, "%s filter requires decision.model_path", c.Decision.Filter)
	}

	return nil
}

// StrategyConfig is the part of the config the strategy consumes.
func (c EngineConfig) StrategyConfig() strategy.Config {
	return strategy.Config{
		Indicator: c.Indicator,
		Decision:  c.Decision,
		Signal:    c.Signal,
	}
}

var intervals = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseInterval accepts exchange style intervals (1m, 5m, 1h, 1d, 1w).
func ParseInterval(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported interval %q", interval)
	}

	return d, nil
}

func (c EngineConfig) IntervalDuration() (time.Duration, error) {
	return ParseInterval(c.Interval)
}

func (c EngineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", c.Report.Timezone)
	}

	return loc, nil
}

// PeriodsPerYear returns the configured value, or the number of bars in a
// year of round-the-clock trading at the configured interval.
func (c EngineConfig) PeriodsPerYear() float64 {
	if c.Report.PeriodsPerYear > 0 {
		return c.Report.PeriodsPerYear
	}

	d, err := c.IntervalDuration()
	if err != nil || d <= 0 {
		return 0
	}

	return float64(365*24*time.Hour) / float64(d)
}

// NewSchemaReflector returns the reflector every config schema is generated
// with. Section types named Config are qualified by their package, so
// risk.Config becomes RiskConfig in $defs.
func NewSchemaReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Namer:                      schemaName,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration such as 30s or 10m",
				}
			}

			if strings.Contains(t.String(), "commission_fee.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			}

			return nil
		},
	}
}

func schemaName(t reflect.Type) string {
	name := t.Name()
	if name != "Config" || t.PkgPath() == "" {
		return name
	}

	pkg := path.Base(t.PkgPath())

	return strings.ToUpper(pkg[:1]) + pkg[1:] + name
}

// GenerateSchema generates a JSON schema for EngineConfig.
func (c *EngineConfig) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := NewSchemaReflector()

	schema := reflector.Reflect(c)
	schema.Title = "strategy-engine-config"
	schema.Description = "Configuration schema for the strategy engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for EngineConfig.
func (c *EngineConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
