package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"codesync/internal/config"
	"codesync/internal/devgateway"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := devgateway.Init(c)
	if err != nil {
		log.Fatalf("Init devgateway failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (devgateway.Config, error) {
	var c devgateway.Config

	if p := os.Getenv("CONFIG_PATH"); p != "" {
		if err := config.Load(p, &c); err != nil {
			return c, err
		}
	} else if err := config.LoadEnv(&c); err != nil {
		return c, err
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if len(c.Redis.Addrs) == 0 {
		c.Redis.Addrs = []string{"localhost:6379"}
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = "dev-only-secret"
	}

	return c, nil
}
