package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/teianlab/teian-api/internal/config"
	"github.com/teianlab/teian-api/internal/db"
	"github.com/teianlab/teian-api/internal/httpapi"
	"github.com/teianlab/teian-api/internal/store/rabbitmq"
	"github.com/teianlab/teian-api/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pctx); err != nil {
		log.Printf("redis ping failed (auth links and drafts degraded): %v", err)
	}
	cancel()

	// Async generation is optional; without a broker the sync endpoint
	// still works.
	var rabbit *rabbitmq.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Printf("rabbit connect failed (async jobs disabled): %v", err)
	} else {
		rabbit = p
		defer rabbit.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, rds, rabbit)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("server listening addr=%s anonymous=%v llm=%v", addr, cfg.AllowAnonymous, cfg.HasLLMCredential())
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
