package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tyemirov/webharbour/internal/authkit"
	"github.com/tyemirov/webharbour/internal/authkitpg"
	"go.uber.org/zap"
)

const (
	engineGORM = "gorm"
	enginePGX  = "pgx"
)

type storeBundle struct {
	label         string
	users         authkit.UserStore
	refreshTokens authkit.RefreshTokenStore
	closers       []func()
}

func (bundle *storeBundle) close() {
	for index := len(bundle.closers) - 1; index >= 0; index-- {
		bundle.closers[index]()
	}
}

// openStores selects user and refresh token persistence. An empty URL keeps everything in memory.
func openStores(ctx context.Context, engine string, databaseURL string, logger *zap.Logger) (*storeBundle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(databaseURL) == "" {
		logger.Info("using in-memory stores")
		return &storeBundle{
			label:         "memory",
			users:         authkit.NewMemoryUserStore(),
			refreshTokens: authkit.NewMemoryRefreshTokenStore(),
		}, nil
	}

	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", engineGORM:
		database, openErr := authkit.OpenDatabase(ctx, databaseURL)
		if openErr != nil {
			return nil, openErr
		}
		logger.Info("using gorm stores", zap.String("driver", database.DriverLabel))
		return &storeBundle{
			label:         "gorm:" + database.DriverLabel,
			users:         authkit.NewDatabaseUserStore(database),
			refreshTokens: authkit.NewDatabaseRefreshTokenStore(database),
			closers: []func(){func() {
				if closeErr := database.Close(); closeErr != nil {
					logger.Warn("database close failed", zap.Error(closeErr))
				}
			}},
		}, nil
	case enginePGX:
		pgStores, openErr := authkitpg.OpenStores(ctx, databaseURL)
		if openErr != nil {
			return nil, openErr
		}
		logger.Info("using pgx stores")
		return &storeBundle{
			label:         "pgx",
			users:         pgStores.Users,
			refreshTokens: pgStores.RefreshTokens,
			closers:       []func(){pgStores.Close},
		}, nil
	default:
		return nil, configError(configCodeInvalidDatabaseEngine, fmt.Sprintf("database_engine %q must be gorm or pgx", engine))
	}
}
