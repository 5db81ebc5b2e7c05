package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stockbench/bus"
	"stockbench/config"
	"stockbench/messaging"
	"stockbench/notify"
	"stockbench/store"
	"stockbench/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "stockbench.yaml", "path to config file")
	hashPW := flag.String("hashpw", "", "print the bcrypt hash for the given password and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("stockbench", Version)
		return
	}
	if *hashPW != "" {
		hash, err := www.HashPassword(*hashPW)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Web.PasswordHash == "" {
		log.Printf("stockbench: web.password_hash is empty, logins will be refused (generate one with -hashpw)")
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("stockbench: database open (%s)", cfg.Database.Driver)

	events := bus.NewEventBus()

	// Redis event bridge (optional, for multi-instance SSE fan-out)
	var bridge *notify.Bridge
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("stockbench: redis not available (%v), running without event bridge", err)
		} else {
			log.Printf("stockbench: redis connected (%s)", cfg.Redis.Address)
			bridge = notify.New(redisClient, cfg.Redis.Channel)
			defer bridge.Close()
		}
		cancel()
		defer redisClient.Close()
	}

	// Kafka commit feed (optional)
	if cfg.Messaging.Enabled {
		msgClient := messaging.NewClient(&cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Printf("stockbench: messaging connect failed (%v), outbox will retry", err)
		} else {
			log.Printf("stockbench: messaging connected (kafka)")
		}
		defer msgClient.Close()

		drainer := messaging.NewOutboxDrainer(db, msgClient, time.Duration(cfg.Messaging.OutboxDrainInterval))
		drainer.Start()
		defer drainer.Stop()
	}

	// Web server
	handler, stopWeb := www.NewRouter(www.Deps{
		DB:     db,
		Config: cfg,
		Events: events,
		Bridge: bridge,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("stockbench: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("stockbench: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("stockbench: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("stockbench: stopped")
}
