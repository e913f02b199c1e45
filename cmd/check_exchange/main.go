package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"github.com/vitos/crypto_signal_bot/internal/infrastructure/exchange"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		Name         string `yaml:"name"`
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		DataEndpoint string `yaml:"data_endpoint"`
	} `yaml:"exchange"`
	Trading struct {
		QuoteAsset string `yaml:"quote_asset"`
	} `yaml:"trading"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to query")
	flag.Parse()

	// 1. Load Config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var adapter domain.Exchange
	switch cfg.Exchange.Name {
	case "alpaca":
		adapter = exchange.NewAlpacaAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
			cfg.Exchange.RESTEndpoint, cfg.Exchange.DataEndpoint)
	default:
		adapter = exchange.NewMEXCAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
			cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint)
	}

	fmt.Printf("Testing %s Interaction...\n", adapter.Name())
	ctx := context.Background()

	// 2. Check Public Endpoint (Price)
	price, err := adapter.GetPrice(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", *symbol, price)
	}

	// 3. Check Private Endpoint (Account)
	if err := adapter.ValidateConnection(ctx); err != nil {
		fmt.Printf("❌ Account check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Account access OK")

	quote := cfg.Trading.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	bal, err := adapter.GetBalance(ctx, quote)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ Balance (%s): Free=%f, Total=%f\n", quote, bal.Free, bal.Total)
	}
}
