// Package backend opens the gateway implementation selected by configuration.
package backend

import (
	"context"
	"log/slog"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/config"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/featureservice"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/memstore"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/pgstore"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/sqlitestore"
)

// Open returns the configured gateway and a function releasing its resources.
func Open(ctx context.Context, cfg *config.Config) (gateway.Gateway, func(), error) {
	noop := func() {}
	switch cfg.Gateway {
	case config.GatewayFeatureService:
		c, err := featureservice.New(featureservice.Config{
			PortalURL:    cfg.FeaturePortalURL,
			Username:     cfg.FeatureUsername,
			Password:     cfg.FeaturePassword,
			OrdersURL:    cfg.OrdersLayerURL,
			InventoryURL: cfg.InventoryLayerURL,
			ServiceURL:   cfg.FeatureServiceURL,
			RPS:          cfg.FeatureRPS,
		})
		if err != nil {
			return nil, nil, err
		}
		_, atomic := c.Gateway().(gateway.Atomic)
		slog.Info("using feature service", "orders", cfg.OrdersLayerURL, "inventory", cfg.InventoryLayerURL, "atomic", atomic)
		return c.Gateway(), noop, nil

	case config.GatewayPostgres:
		s, pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to database")
		return s, pool.Close, nil

	case config.GatewaySQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened sqlite database", "path", cfg.SQLitePath)
		return s, func() { s.Close() }, nil
	}
	return memstore.New(), noop, nil
}
