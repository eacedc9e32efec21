// Package config loads ledger-import settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/match"
	"github.com/dvloznov/ledger-import/internal/source"
)

var (
	ErrUnknownDriver = errors.New("unknown ledger driver")
	ErrMissingValue  = errors.New("missing required setting")
)

// Ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBigQuery = "bigquery"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LedgerConfig struct {
	// Driver is sqlite or bigquery.
	Driver  string `mapstructure:"driver"`
	Path    string `mapstructure:"path"`
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

type CSVConfig struct {
	Date        string `mapstructure:"date"`
	Amount      string `mapstructure:"amount"`
	Description string `mapstructure:"description"`
	Key         string `mapstructure:"key"`
	Check       string `mapstructure:"check"`
	Debit       string `mapstructure:"debit"`
	Credit      string `mapstructure:"credit"`
	DateLayout  string `mapstructure:"date_layout"`
	Delimiter   string `mapstructure:"delimiter"`
	Negate      bool   `mapstructure:"negate"`
}

type ImportConfig struct {
	ToleranceDays        int      `mapstructure:"tolerance_days"`
	TieBreak             string   `mapstructure:"tie_break"`
	SkipMalformed        bool     `mapstructure:"skip_malformed"`
	AuthoritativeSources []string `mapstructure:"authoritative_sources"`

	ItemsAccount      string `mapstructure:"items_account"`
	ReturnsAccount    string `mapstructure:"returns_account"`
	ExchangeAccount   string `mapstructure:"exchange_account"`
	ImportFeesAccount string `mapstructure:"import_fees_account"`
	GiftCardAccount   string `mapstructure:"gift_card_account"`

	CSV           CSVConfig `mapstructure:"csv"`
	QIFDateLayout string    `mapstructure:"qif_date_layout"`
}

type GeminiConfig struct {
	Model string `mapstructure:"model"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

type APIConfig struct {
	Port   int    `mapstructure:"port"`
	Bucket string `mapstructure:"bucket"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Import  ImportConfig  `mapstructure:"import"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Notion  NotionConfig  `mapstructure:"notion"`
	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DefaultConfig returns the settings used when neither the file nor the
// environment say otherwise.
func DefaultConfig() *Config {
	cols := source.DefaultColumns()
	return &Config{
		Log: LogConfig{Level: "info"},
		Ledger: LedgerConfig{
			Driver:  DriverSQLite,
			Path:    "ledger.db",
			Dataset: "ledger",
		},
		Import: ImportConfig{
			ToleranceDays: match.DefaultToleranceDays,
			TieBreak:      string(match.TieBreakFail),
			CSV: CSVConfig{
				Date:        cols.Date,
				Amount:      cols.Amount,
				Description: cols.Description,
				DateLayout:  cols.DateLayout,
				Delimiter:   string(cols.Comma),
			},
			QIFDateLayout: source.DefaultQIFDateLayout,
		},
		Gemini:  GeminiConfig{Model: source.DefaultModelName},
		API:     APIConfig{Port: 8080},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from path (e.g. "config.yaml"). With an empty
// path it looks for config.yaml in the working directory and falls back to
// the defaults when there is none. Environment variables override both,
// e.g. LEDGER_LEDGER_DRIVER=bigquery or LEDGER_IMPORT_TIE_BREAK=first.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("Load: unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &c, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the
// file does not mention.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("log.level", c.Log.Level)

	v.SetDefault("ledger.driver", c.Ledger.Driver)
	v.SetDefault("ledger.path", c.Ledger.Path)
	v.SetDefault("ledger.project", c.Ledger.Project)
	v.SetDefault("ledger.dataset", c.Ledger.Dataset)

	v.SetDefault("import.tolerance_days", c.Import.ToleranceDays)
	v.SetDefault("import.tie_break", c.Import.TieBreak)
	v.SetDefault("import.skip_malformed", c.Import.SkipMalformed)
	v.SetDefault("import.authoritative_sources", c.Import.AuthoritativeSources)
	v.SetDefault("import.items_account", c.Import.ItemsAccount)
	v.SetDefault("import.returns_account", c.Import.ReturnsAccount)
	v.SetDefault("import.exchange_account", c.Import.ExchangeAccount)
	v.SetDefault("import.import_fees_account", c.Import.ImportFeesAccount)
	v.SetDefault("import.gift_card_account", c.Import.GiftCardAccount)
	v.SetDefault("import.qif_date_layout", c.Import.QIFDateLayout)

	v.SetDefault("import.csv.date", c.Import.CSV.Date)
	v.SetDefault("import.csv.amount", c.Import.CSV.Amount)
	v.SetDefault("import.csv.description", c.Import.CSV.Description)
	v.SetDefault("import.csv.key", c.Import.CSV.Key)
	v.SetDefault("import.csv.check", c.Import.CSV.Check)
	v.SetDefault("import.csv.debit", c.Import.CSV.Debit)
	v.SetDefault("import.csv.credit", c.Import.CSV.Credit)
	v.SetDefault("import.csv.date_layout", c.Import.CSV.DateLayout)
	v.SetDefault("import.csv.delimiter", c.Import.CSV.Delimiter)
	v.SetDefault("import.csv.negate", c.Import.CSV.Negate)

	v.SetDefault("gemini.model", c.Gemini.Model)
	v.SetDefault("notion.token", c.Notion.Token)
	v.SetDefault("notion.database_id", c.Notion.DatabaseID)
	v.SetDefault("api.port", c.API.Port)
	v.SetDefault("api.bucket", c.API.Bucket)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
}

// Validate checks settings that would otherwise fail later and further from
// their cause.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case DriverSQLite:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path: %w", ErrMissingValue)
		}
	case DriverBigQuery:
		if c.Ledger.Project == "" {
			return fmt.Errorf("ledger.project: %w", ErrMissingValue)
		}
		if c.Ledger.Dataset == "" {
			return fmt.Errorf("ledger.dataset: %w", ErrMissingValue)
		}
	default:
		return fmt.Errorf("ledger.driver %q: %w", c.Ledger.Driver, ErrUnknownDriver)
	}
	if _, err := match.ParseTieBreak(c.Import.TieBreak); err != nil {
		return fmt.Errorf("import.tie_break: %w", err)
	}
	if utf8.RuneCountInString(c.Import.CSV.Delimiter) > 1 {
		return fmt.Errorf("import.csv.delimiter %q: must be a single character", c.Import.CSV.Delimiter)
	}
	return nil
}

// Importer converts the import section into an importer.Config.
func (c *Config) Importer() (importer.Config, error) {
	tb, err := match.ParseTieBreak(c.Import.TieBreak)
	if err != nil {
		return importer.Config{}, fmt.Errorf("Importer: %w", err)
	}
	return importer.Config{
		ToleranceDays:        c.Import.ToleranceDays,
		TieBreak:             tb,
		SkipMalformed:        c.Import.SkipMalformed,
		AuthoritativeSources: c.Import.AuthoritativeSources,
		ItemsAccount:         c.Import.ItemsAccount,
		ReturnsAccount:       c.Import.ReturnsAccount,
		ExchangeAccount:      c.Import.ExchangeAccount,
		ImportFeesAccount:    c.Import.ImportFeesAccount,
		GiftCardAccount:      c.Import.GiftCardAccount,
	}, nil
}

// SourceOptions builds reader options. The model is wired separately since
// it needs a live client.
func (c *Config) SourceOptions() source.Options {
	csv := c.Import.CSV
	cols := source.Columns{
		Date:        csv.Date,
		Amount:      csv.Amount,
		Description: csv.Description,
		Key:         csv.Key,
		Check:       csv.Check,
		Debit:       csv.Debit,
		Credit:      csv.Credit,
		DateLayout:  csv.DateLayout,
		Negate:      csv.Negate,
	}
	if r, _ := utf8.DecodeRuneInString(csv.Delimiter); r != utf8.RuneError {
		cols.Comma = r
	}
	return source.Options{
		Columns:    cols,
		DateLayout: c.Import.QIFDateLayout,
		ModelName:  c.Gemini.Model,
	}
}
