package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"credits-gateway/internal/config"
	"credits-gateway/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !cfg.Database.Postgres.Enabled {
		fmt.Println("database.postgres.enabled is false, nothing to migrate")
		return
	}

	ctx := context.Background()

	// 2. 初始化 PostgreSQL
	pg, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize postgres: %v", err)
	}
	defer cleanup()

	// 3. 建表（webhook 去重回执）
	if err := pg.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	fmt.Println("Bootstrap completed")
}
