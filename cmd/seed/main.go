package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/config"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/backend"
)

func main() {
	// CLI flags
	qty := flag.Int("qty", -1, "Starting quantity for new inventory rows")
	demo := flag.Bool("demo-order", false, "Also insert an Open demo order")
	flag.Parse()

	// Fall back to environment variables, then defaults
	if *qty < 0 {
		if v := os.Getenv("SEED_QUANTITY"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Fatalf("SEED_QUANTITY: %v", err)
			}
			*qty = n
		}
	}
	if *qty < 0 {
		*qty = 0
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Gateway == config.GatewayMemory {
		log.Fatalf("GATEWAY=memory keeps nothing; set GATEWAY to sqlite, postgres or featureservice")
	}

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	ctx := context.Background()
	gw, closeGateway, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open %s gateway: %v", cfg.Gateway, err)
	}
	defer closeGateway()

	eng := fulfillment.NewEngine(gw, cat)
	added, err := eng.SeedCatalog(ctx, *qty)
	for _, it := range added {
		log.Printf("Created inventory item '%s' (%s), quantity %d (ID: %d)", it.ShortName, it.LongName, it.Quantity, it.ID)
	}
	if err != nil {
		log.Fatalf("Failed to seed inventory: %v", err)
	}
	if len(added) == 0 {
		log.Println("Every catalog item already has an inventory row, skipping")
	}

	if err := eng.VerifyMapping(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}

	if *demo {
		id, err := seedDemoOrder(ctx, gw, cat)
		if err != nil {
			log.Fatalf("Failed to seed demo order: %v", err)
		}
		log.Printf("Created demo order #%d", id)
	}

	log.Println("Seed completed successfully")
}

// seedDemoOrder inserts an Open order requesting one of each of the first
// three catalog products.
func seedDemoOrder(ctx context.Context, gw gateway.Gateway, cat *catalog.Catalog) (int64, error) {
	products := cat.Products()
	if len(products) > 3 {
		products = products[:3]
	}
	keys := make([]string, len(products))
	attrs := map[string]any{
		enum.OrderAttrCoach:     "Demo Coach",
		enum.OrderAttrStaff:     "SWE - Demo Staff",
		enum.OrderAttrCommunity: "Demo Community",
		enum.OrderAttrDate:      time.Now().UnixMilli(),
		enum.OrderAttrStatus:    enum.OrderStatusOpen,
	}
	for i, p := range products {
		keys[i] = p.Key
		attrs[p.OrderField] = 1
	}
	attrs[enum.OrderAttrProducts] = strings.Join(keys, ",")

	id, err := gw.InsertRecord(ctx, gateway.Orders, attrs)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}
