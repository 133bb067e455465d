// registeripn registers this service's IPN URL with Pesapal and prints the
// resulting ipn_id. Run once per environment and set PESAPAL_NOTIFICATION_ID
// to the printed value.
//
// Re-running with PESAPAL_NOTIFICATION_ID already set re-registers the same
// id, which Pesapal treats as an update.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/config"
	"github.com/Brymax254/safari-payments/internal/platform/pesapal"
	"github.com/Brymax254/safari-payments/internal/tokencache"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Load()
	if cfg.Pesapal.ConsumerKey == "" || cfg.Pesapal.ConsumerSecret == "" {
		logger.Fatal("PESAPAL_CONSUMER_KEY and PESAPAL_CONSUMER_SECRET are required")
	}

	pesapalCfg := pesapal.Config{
		BaseURL:        cfg.Pesapal.BaseURL,
		ConsumerKey:    cfg.Pesapal.ConsumerKey,
		ConsumerSecret: cfg.Pesapal.ConsumerSecret,
		NotificationID: cfg.Pesapal.NotificationID,
		CallbackURL:    cfg.CallbackURL(),
	}
	tokens := pesapal.NewTokenSource(pesapalCfg, tokencache.NewMemoryStore(), logger)
	client := pesapal.NewClient(pesapalCfg, tokens, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ipnID, err := client.RegisterIPN(ctx, cfg.IPNURL())
	if err != nil {
		logger.Fatal("IPN registration failed", zap.Error(err))
	}

	logger.Info("IPN registered",
		zap.String("url", cfg.IPNURL()),
		zap.String("ipn_id", ipnID))
	fmt.Println(ipnID)
}
