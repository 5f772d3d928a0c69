package config

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requiredEnv = map[string]string{
	"SNOWFLAKE_ACCOUNT":          "xy12345",
	"SNOWFLAKE_USER":             "LISTER",
	"SNOWFLAKE_WAREHOUSE":        "COMPUTE_WH",
	"SNOWFLAKE_DATABASE":         "ANALYTICS",
	"SNOWFLAKE_PRIVATE_KEY_PATH": "/keys/rsa_key.p8",
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, f := range Fields {
		t.Setenv(EnvName(f), "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, requiredEnv)

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "xy12345", cfg.Account)
	assert.Equal(t, "LISTER", cfg.User)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
	assert.Equal(t, "ANALYTICS", cfg.Database)
	assert.Equal(t, "/keys/rsa_key.p8", cfg.PrivateKeyPath)
	assert.Equal(t, "", cfg.Role)
	assert.Equal(t, "<default>", cfg.RoleOrDefault())
	assert.Equal(t, "%", cfg.SchemaLike)
	assert.Equal(t, ConnectorDriver, cfg.Connector)
	assert.Equal(t, "https://xy12345.snowflakecomputing.com", cfg.AccountUrl)
	assert.Equal(t, "tables.csv", cfg.Output)
}

func TestLoadOptional(t *testing.T) {
	env := map[string]string{
		"SNOWFLAKE_ROLE":        "ANALYST",
		"SNOWFLAKE_SCHEMA_LIKE": "STG_%",
		"SNOWFLAKE_CONNECTOR":   "SQL-API",
		"SNOWFLAKE_ACCOUNT_URL": "https://example.test",
	}
	for k, v := range requiredEnv {
		env[k] = v
	}
	setEnv(t, env)

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "ANALYST", cfg.Role)
	assert.Equal(t, "ANALYST", cfg.RoleOrDefault())
	assert.Equal(t, "STG_%", cfg.SchemaLike)
	assert.Equal(t, ConnectorSQLAPI, cfg.Connector)
	assert.Equal(t, "https://example.test", cfg.AccountUrl)
}

func TestLoadMissingRequired(t *testing.T) {
	for key := range requiredEnv {
		t.Run(key, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range requiredEnv {
				if k != key {
					env[k] = v
				}
			}
			setEnv(t, env)

			cfg, err := Load(NewViper())
			require.Nil(t, cfg)

			var missing *MissingEnvError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, key, missing.Key)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadInvalidConnector(t *testing.T) {
	env := map[string]string{"SNOWFLAKE_CONNECTOR": "odbc"}
	for k, v := range requiredEnv {
		env[k] = v
	}
	setEnv(t, env)

	_, err := Load(NewViper())
	require.ErrorIs(t, err, ErrInvalidConnector)
}

func TestFlagsOverrideEnv(t *testing.T) {
	setEnv(t, requiredEnv)

	v := NewViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flags, v))
	require.NoError(t, flags.Parse([]string{"--database", "RAW", "--output", "out.csv"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "RAW", cfg.Database)
	assert.Equal(t, "out.csv", cfg.Output)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SNOWFLAKE_PRIVATE_KEY_PATH", EnvName(PrivateKeyPathField))
	assert.Equal(t, "SNOWFLAKE_SCHEMA_LIKE", EnvName(SchemaLikeField))
}

func TestConfigurationSchema(t *testing.T) {
	schema := ConfigurationSchema()
	require.Len(t, schema.Fields, len(Fields))

	var required []string
	for _, f := range schema.Fields {
		if f.Required {
			required = append(required, EnvName(f))
		}
	}
	assert.Equal(t, []string{
		"SNOWFLAKE_ACCOUNT",
		"SNOWFLAKE_USER",
		"SNOWFLAKE_WAREHOUSE",
		"SNOWFLAKE_DATABASE",
		"SNOWFLAKE_PRIVATE_KEY_PATH",
	}, required)

	assert.Equal(t, DefaultSchemaLike, SchemaLikeField.DefaultValue)
	assert.Equal(t, ConnectorDriver, ConnectorField.DefaultValue)
	assert.Equal(t, DefaultOutput, OutputField.DefaultValue)
	assert.Empty(t, RoleField.DefaultValue)
}

func TestBindFlagsUsesSchema(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flags, NewViper()))

	for _, f := range Fields {
		flag := flags.Lookup(f.FieldName)
		require.NotNil(t, flag, f.FieldName)
		assert.Contains(t, flag.Usage, f.Description)
		assert.Contains(t, flag.Usage, EnvName(f))
	}
}

func TestLoadExplicitFlagOverridesDefault(t *testing.T) {
	setEnv(t, requiredEnv)

	v := NewViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flags, v))
	require.NoError(t, flags.Parse([]string{"--schema-like", "RAW_%"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "RAW_%", cfg.SchemaLike)
	assert.Equal(t, DefaultOutput, cfg.Output)
}
