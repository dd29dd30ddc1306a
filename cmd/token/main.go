package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jwebster45206/roleplay-agent/internal/auth"
)

// tokenConfig reads only the signing secret so the tool works without
// provider or store settings.
type tokenConfig struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

func main() {
	user := flag.String("user", "", "user id to place in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -user <id> [-ttl 24h]\n", os.Args[0])
		os.Exit(1)
	}

	_ = godotenv.Load()
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewToken(cfg.JWTSecret, *user, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
