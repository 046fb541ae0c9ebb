package store

import (
	"strings"

	"github.com/loykin/apireplay/internal/constants"
	"github.com/loykin/apireplay/internal/store/connector"
	"github.com/loykin/apireplay/internal/store/postgresql"
	"github.com/loykin/apireplay/internal/store/sqlite"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

type (
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
	TableNames     = connector.TableNames
	Run            = connector.Run
	Summary        = connector.Summary
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	TablePrefix  string `mapstructure:"table_prefix"`
	TableNames   TableNames
	DriverConfig DriverConfig
}

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// DefaultTableNames returns the table names used without a prefix.
func DefaultTableNames() TableNames {
	return TableNames{
		Runs:         constants.DefaultRunsTable,
		Iterations:   constants.DefaultIterationsTable,
		Measurements: constants.DefaultMeasurementsTable,
	}
}

// PrefixedTableNames derives all three table names from prefix.
func PrefixedTableNames(prefix string) TableNames {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultTableNames()
	}
	return TableNames{
		Runs:         prefix + constants.RunsSuffix,
		Iterations:   prefix + constants.IterationsSuffix,
		Measurements: prefix + constants.MeasurementsSuffix,
	}
}

// tableNames resolves explicit names, then the prefix, then the defaults.
func (c Config) tableNames() TableNames {
	tn := PrefixedTableNames(c.TablePrefix)
	if c.TableNames.Runs != "" {
		tn.Runs = c.TableNames.Runs
	}
	if c.TableNames.Iterations != "" {
		tn.Iterations = c.TableNames.Iterations
	}
	if c.TableNames.Measurements != "" {
		tn.Measurements = c.TableNames.Measurements
	}
	return tn
}
