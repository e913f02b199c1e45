package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vitos/crypto_signal_bot/internal/domain"
	"github.com/vitos/crypto_signal_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_signal_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_signal_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_signal_bot/internal/usecase"
	"github.com/vitos/crypto_signal_bot/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		Name         string `yaml:"name"` // mexc, alpaca or paper
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		DataEndpoint string `yaml:"data_endpoint"`
		// Symbols streamed over WS so stop-loss checks hit the tick cache
		// instead of REST.
		WatchSymbols []string `yaml:"watch_symbols"`
	} `yaml:"exchange"`
	Trading struct {
		UsePercentage         bool                   `yaml:"use_percentage"`
		PositionSizePercent   float64                `yaml:"position_size_percent"`
		PositionSizeFixed     float64                `yaml:"position_size_fixed"`
		QuoteAsset            string                 `yaml:"quote_asset"`
		WarnExistingPositions bool                   `yaml:"warn_existing_positions"`
		StopLossPercent       float64                `yaml:"stop_loss_percent"`
		TakeProfits           []usecase.TPRungConfig `yaml:"take_profits"`
	} `yaml:"trading"`
	Monitor struct {
		StopLossIntervalMs  int `yaml:"stop_loss_interval_ms"`
		ReconcileIntervalMs int `yaml:"reconcile_interval_ms"`
	} `yaml:"monitor"`
	Audit struct {
		DBPath         string `yaml:"db_path"`
		MaxSignals     int    `yaml:"max_signals"`
		RetentionHours int    `yaml:"retention_hours"`
	} `yaml:"audit"`
	Paper struct {
		Balances map[string]float64 `yaml:"balances"`
		Prices   map[string]float64 `yaml:"prices"`
	} `yaml:"paper"`
	Logging struct {
		Level    string `yaml:"level"`
		TradeLog string `yaml:"trade_log"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
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

func buildExchange(cfg *Config) (domain.Exchange, error) {
	switch strings.ToLower(cfg.Exchange.Name) {
	case "mexc", "":
		return exchange.NewMEXCAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
			cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint), nil
	case "alpaca":
		return exchange.NewAlpacaAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
			cfg.Exchange.RESTEndpoint, cfg.Exchange.DataEndpoint), nil
	case "paper":
		sim := exchange.NewSimContext(cfg.Paper.Balances, cfg.Paper.Prices)
		return exchange.NewPaperAdapter(sim), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tradeLog := log
	if cfg.Logging.TradeLog != "" {
		tradeLog, err = logger.NewFileLogger(cfg.Logging.TradeLog, cfg.Logging.Level)
		if err != nil {
			log.Error("Failed to init trade logger, using default", zap.Error(err))
			tradeLog = log
		}
	}

	// 3. Init Storage
	dbPath := cfg.Audit.DBPath
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	venue, err := buildExchange(cfg)
	if err != nil {
		log.Fatal("Failed to init exchange", zap.Error(err))
	}
	if err := venue.ValidateConnection(context.Background()); err != nil {
		log.Error("Exchange connection check failed", zap.String("venue", venue.Name()), zap.Error(err))
	}
	if mexc, ok := venue.(*exchange.MEXCAdapter); ok && len(cfg.Exchange.WatchSymbols) > 0 {
		if err := mexc.Subscribe(cfg.Exchange.WatchSymbols); err != nil {
			log.Error("Failed to subscribe to price stream", zap.Error(err))
		}
	}

	// 5. Init Services
	planner := usecase.NewPlanner(cfg.Trading.TakeProfits, cfg.Trading.StopLossPercent)
	positions := usecase.NewPositionStore(log)
	executor := usecase.NewExecutor(venue, positions, planner, tradeLog, usecase.ExecutorConfig{
		UsePercentage:         cfg.Trading.UsePercentage,
		PositionSizePercent:   cfg.Trading.PositionSizePercent,
		PositionSizeFixed:     cfg.Trading.PositionSizeFixed,
		QuoteAsset:            cfg.Trading.QuoteAsset,
		WarnExistingPositions: cfg.Trading.WarnExistingPositions,
	})

	retention := time.Duration(cfg.Audit.RetentionHours) * time.Hour
	signalMonitor := usecase.NewSignalMonitor(store, log, cfg.Audit.MaxSignals, retention)
	if err := signalMonitor.Restore(context.Background()); err != nil {
		log.Error("Failed to restore signal audit trail", zap.Error(err))
	}

	// 6. Start Background Monitors
	ctx, cancel := context.WithCancel(context.Background())

	slInterval := time.Duration(cfg.Monitor.StopLossIntervalMs) * time.Millisecond
	slMonitor := usecase.NewStopLossMonitor(venue, positions, tradeLog, slInterval, 0)
	slMonitor.Start(ctx)

	tpInterval := time.Duration(cfg.Monitor.ReconcileIntervalMs) * time.Millisecond
	reconciler := usecase.NewTPReconciler(venue, positions, tradeLog, tpInterval, 0)
	reconciler.OnCriticalInvariant(func(symbol string, err error) {
		log.Error("CRITICAL: stop-loss was not moved to entry after first take-profit",
			zap.String("symbol", symbol),
			zap.Error(err))
	})
	reconciler.Start(ctx)

	// 7. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, executor, positions, signalMonitor, log)

	// 8. Start Server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	slMonitor.Wait()
	reconciler.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
}
