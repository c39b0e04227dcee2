package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// dialectorFactory builds a gorm.Dialector from a DSN.
type dialectorFactory func(dsn string) gorm.Dialector

var dialectorFactories = map[string]dialectorFactory{
	"sqlite":   sqlite.Open,
	"postgres": postgres.Open,
}

// openDialector returns a GORM dialector for the configured driver.
func openDialector(driver, dsn string) (gorm.Dialector, error) {
	factory, exists := dialectorFactories[driver]
	if !exists {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return factory(dsn), nil
}
