package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	errEmptyDatabaseURL    = errors.New("store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("store.unsupported_no_scheme")
)

// Database is an opened GORM handle with the auth tables migrated.
type Database struct {
	DB          *gorm.DB
	DriverLabel string
}

// OpenDatabase resolves the driver from the URL scheme, opens it, and migrates the auth tables.
func OpenDatabase(ctx context.Context, databaseURL string) (*Database, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("store.open.%s: %w", driverLabel, openErr)
	}
	if driverLabel == "sqlite" {
		// SQLite allows one writer; a single connection serializes writes instead of failing with SQLITE_BUSY.
		sqlDB, sqlErr := gormDB.DB()
		if sqlErr != nil {
			return nil, fmt.Errorf("store.open.%s: %w", driverLabel, sqlErr)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRow{}, &developerProfileRow{}, &refreshTokenRow{}); migrateErr != nil {
		return nil, fmt.Errorf("store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &Database{DB: gormDB, DriverLabel: driverLabel}, nil
}

// Close releases the underlying connection pool.
func (database *Database) Close() error {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
