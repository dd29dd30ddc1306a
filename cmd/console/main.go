package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

type ConsoleConfig struct {
	APIBaseURL    string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	APIToken      string        `env:"API_TOKEN"`
	CharacterName string        `env:"CHARACTER_NAME" envDefault:"Wanderer"`
	Timeout       time.Duration `env:"CONSOLE_TIMEOUT" envDefault:"3m"` // Covers three narration calls
}

func main() {
	_ = godotenv.Load()

	cfg := &ConsoleConfig{}
	if err := env.Parse(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.APIToken == "" {
		fmt.Fprintf(os.Stderr, "API_TOKEN is required.\nTry: export API_TOKEN=$(go run ./cmd/token -user me)\n")
		os.Exit(1)
	}

	client := &apiClient{
		baseURL: cfg.APIBaseURL,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.Timeout},
	}

	if !client.testConnection() {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
