package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the cart service's shared connection pool. Client binaries
// (cartctl, edgecached) never open it.
var DB *pgxpool.Pool

func databaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		AppConfig.DBUser, AppConfig.DBPassword, AppConfig.DBHost,
		AppConfig.DBPort, AppConfig.DBName, AppConfig.DBSSLMode)
}

func ConnectDB() {
	poolCfg, err := pgxpool.ParseConfig(databaseDSN())
	if err != nil {
		log.Fatalf("Invalid cart database configuration: %v", err)
	}
	poolCfg.MaxConns = 10

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	DB, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("Unable to create cart database pool: %v", err)
	}
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("Cart database unreachable: %v", err)
	}
	log.Printf("Cart database connected: %s/%s", AppConfig.DBHost, AppConfig.DBName)
}

func CloseDB() {
	if DB != nil {
		DB.Close()
		log.Println("Cart database pool closed")
	}
}
