package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kkbullenn/trivia-app/internal/config"
	"github.com/kkbullenn/trivia-app/internal/server"
)

const defaultConfigPath = "config.yaml"

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	c := defaultConfig()

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		p = defaultConfigPath
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func defaultConfig() server.Config {
	var c server.Config

	c.HTTP.Port = 8080

	c.Redis.Addrs = []string{"localhost:6379"}
	c.Redis.Prefix = "trivia"

	c.Postgres.Addr = "localhost:5432"
	c.Postgres.User = "trivia"
	c.Postgres.Pass = "trivia"
	c.Postgres.Name = "trivia"

	return c
}
