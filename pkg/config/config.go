package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conductorone/baton-sdk/pkg/field"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SNOWFLAKE"

	ConnectorDriver = "driver"
	ConnectorSQLAPI = "sql-api"

	DefaultSchemaLike = "%"
	DefaultOutput     = "tables.csv"
)

var (
	AccountField = field.StringField(
		"account",
		field.WithDisplayName("Account"),
		field.WithRequired(true),
		field.WithDescription("Snowflake account identifier"),
	)
	UserField = field.StringField(
		"user",
		field.WithDisplayName("User"),
		field.WithRequired(true),
		field.WithDescription("Snowflake login user"),
	)
	WarehouseField = field.StringField(
		"warehouse",
		field.WithDisplayName("Warehouse"),
		field.WithRequired(true),
		field.WithDescription("Warehouse used to run the metadata query"),
	)
	DatabaseField = field.StringField(
		"database",
		field.WithDisplayName("Database"),
		field.WithRequired(true),
		field.WithDescription("Database whose tables are listed"),
	)
	PrivateKeyPathField = field.StringField(
		"private-key-path",
		field.WithDisplayName("Private Key Path"),
		field.WithRequired(true),
		field.WithDescription("Path to an unencrypted PEM private key"),
		field.WithIsSecret(true),
	)
	RoleField = field.StringField(
		"role",
		field.WithDisplayName("Role"),
		field.WithDescription("Role to assume; the user's default role when empty"),
	)
	SchemaLikeField = field.StringField(
		"schema-like",
		field.WithDisplayName("Schema Pattern"),
		field.WithDescription("SQL LIKE pattern applied to schema names"),
		field.WithDefaultValue(DefaultSchemaLike),
	)
	ConnectorField = field.StringField(
		"connector",
		field.WithDisplayName("Connector"),
		field.WithDescription("Transport used to reach Snowflake (driver or sql-api)"),
		field.WithDefaultValue(ConnectorDriver),
	)
	AccountUrlField = field.StringField(
		"account-url",
		field.WithDisplayName("Account URL"),
		field.WithDescription("Account URL for the SQL API; derived from the account when empty"),
	)
	HostField = field.StringField(
		"host",
		field.WithDisplayName("Host"),
		field.WithDescription("Host override for the driver connection"),
	)
	OutputField = field.StringField(
		"output",
		field.WithDisplayName("Output"),
		field.WithDescription("Path of the CSV file to write"),
		field.WithDefaultValue(DefaultOutput),
	)
	LogLevelField = field.StringField(
		"log-level",
		field.WithDisplayName("Log Level"),
		field.WithDescription("Log level (debug, info, warn, error)"),
		field.WithDefaultValue("info"),
	)
	LogFormatField = field.StringField(
		"log-format",
		field.WithDisplayName("Log Format"),
		field.WithDescription("Log format (console or json)"),
		field.WithDefaultValue("console"),
	)

	// Fields is ordered; required fields are validated in this order.
	Fields = []field.SchemaField{
		AccountField,
		UserField,
		WarehouseField,
		DatabaseField,
		PrivateKeyPathField,
		RoleField,
		SchemaLikeField,
		ConnectorField,
		AccountUrlField,
		HostField,
		OutputField,
		LogLevelField,
		LogFormatField,
	}

	Configuration = field.NewConfiguration(
		Fields,
		field.WithConnectorDisplayName("Snowflake"),
	)
)

func ConfigurationSchema() field.Configuration {
	return Configuration
}

// EnvName returns the environment variable backing f: SNOWFLAKE_<NAME> with
// dashes replaced by underscores.
func EnvName(f field.SchemaField) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.FieldName, "-", "_"))
}

// MissingEnvError is returned when a required variable is unset or empty.
type MissingEnvError struct {
	Key string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("Required env var not set: %s", e.Key)
}

var ErrInvalidConnector = errors.New("invalid connector")

type Config struct {
	Account        string
	User           string
	Warehouse      string
	Database       string
	PrivateKeyPath string
	Role           string
	SchemaLike     string
	Connector      string
	AccountUrl     string
	Host           string
	Output         string
	LogLevel       string
	LogFormat      string
}

// NewViper returns a viper instance reading SNOWFLAKE_* variables, with the
// schema defaults registered. Empty variables count as unset.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, f := range Configuration.Fields {
		if f.DefaultValue != nil {
			v.SetDefault(f.FieldName, f.DefaultValue)
		}
	}
	return v
}

// BindFlags registers a flag for every schema field and binds it to v.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for _, f := range Configuration.Fields {
		flags.String(f.FieldName, "", fmt.Sprintf("%s ($%s)", f.Description, EnvName(f)))
		if err := v.BindPFlag(f.FieldName, flags.Lookup(f.FieldName)); err != nil {
			return err
		}
	}
	return nil
}

func get(v *viper.Viper, f field.SchemaField) string {
	return v.GetString(f.FieldName)
}

// Load reads every field from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	for _, f := range Fields {
		if f.Required && get(v, f) == "" {
			return nil, &MissingEnvError{Key: EnvName(f)}
		}
	}

	cfg := &Config{
		Account:        get(v, AccountField),
		User:           get(v, UserField),
		Warehouse:      get(v, WarehouseField),
		Database:       get(v, DatabaseField),
		PrivateKeyPath: get(v, PrivateKeyPathField),
		Role:           get(v, RoleField),
		SchemaLike:     get(v, SchemaLikeField),
		Connector:      strings.ToLower(get(v, ConnectorField)),
		AccountUrl:     get(v, AccountUrlField),
		Host:           get(v, HostField),
		Output:         get(v, OutputField),
		LogLevel:       get(v, LogLevelField),
		LogFormat:      get(v, LogFormatField),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Connector {
	case ConnectorDriver, ConnectorSQLAPI:
	default:
		return fmt.Errorf("%w %q: expected %s or %s", ErrInvalidConnector, cfg.Connector, ConnectorDriver, ConnectorSQLAPI)
	}

	if cfg.AccountUrl == "" {
		cfg.AccountUrl = fmt.Sprintf("https://%s.snowflakecomputing.com", cfg.Account)
	}

	return nil
}

// RoleOrDefault is used when echoing the config; an empty role defers to Snowflake.
func (c *Config) RoleOrDefault() string {
	if c.Role == "" {
		return "<default>"
	}
	return c.Role
}
