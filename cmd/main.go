// Command dcabot runs a periodic dollar-cost-averaging engine on a single
// trading pair per configured instance. It supports Binance, Bybit,
// Hyperliquid and a paper-trading simulator, configured via a YAML file, CLI
// arguments or the interactive wizard:
//
//	dcabot setup
//	dcabot --config config.yaml
//	dcabot --platform binance --pair BTC_USDT --shares 10
//
// Required environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avgdown/dcabot/config"
	"github.com/avgdown/dcabot/internal"
	"github.com/avgdown/dcabot/internal/gateway"
	"github.com/avgdown/dcabot/internal/setup"
	"github.com/avgdown/dcabot/internal/storage/positions"
	"github.com/avgdown/dcabot/pkg/retrier"
)

const (
	defaultHyperliquidAPIURL = "https://api.hyperliquid.xyz"
	simulateStartQuote       = 10000
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	configs, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	store, err := positions.NewWALStore(positions.DefaultDir)
	if err != nil {
		logger.Fatal("failed to open position store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, conf := range configs {
		conf := conf
		g.Go(func() error {
			gw, err := makeGateway(conf, logger)
			if err != nil {
				return err
			}

			bot, err := internal.NewTradingBot(conf, gw, store, logger)
			if err != nil {
				return err
			}

			// restart with backoff on transient failures
			r := retrier.New(
				retrier.WithInitialInterval(5*time.Second),
				retrier.WithMaxInterval(2*time.Minute),
				retrier.WithMaxRetries(10),
			)
			return r.Do(ctx, bot.Run)
		})
		logger.Info("started", zap.String("pair", conf.Pair.String()), zap.String("platform", conf.Platform))
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error(err.Error())
	}
}

func makeGateway(conf config.Config, logger *zap.Logger) (gateway.Gateway, error) {
	switch conf.Platform {
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			logger.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		return gateway.NewBinanceGateway(gateway.NewBinanceClient(apiKey, apiSecret)), nil
	case "bybit":
		apiKey := os.Getenv("BYBIT_API_KEY")
		apiSecret := os.Getenv("BYBIT_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			logger.Fatal("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
		return gateway.NewBybitGateway(gateway.NewBybitClient(apiKey, apiSecret)), nil
	case "hyperliquid":
		privateKey := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
		if privateKey == "" {
			logger.Fatal("HYPERLIQUID_PRIVATE_KEY environment variable must be set")
		}
		apiURL := os.Getenv("HYPERLIQUID_API_URL")
		if apiURL == "" {
			apiURL = defaultHyperliquidAPIURL
		}
		return gateway.NewHyperliquidGateway(privateKey, apiURL)
	case "simulate":
		// public binance API supplies real prices, no credentials needed
		prices := gateway.NewBinanceGateway(gateway.NewBinanceClient("", ""))
		return gateway.NewSimulateGateway(conf.Pair, prices, decimal.NewFromInt(simulateStartQuote), logger)
	default:
		logger.Fatal("unknown platform", zap.String("platform", conf.Platform))
		return nil, nil
	}
}
