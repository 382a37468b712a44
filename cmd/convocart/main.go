package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/commerce"
	"github.com/vampirenirmal/convocart/internal/config"
	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/core"
	"github.com/vampirenirmal/convocart/internal/idempotency"
	"github.com/vampirenirmal/convocart/internal/messaging"
	"github.com/vampirenirmal/convocart/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	convOpts := []conversation.ContextOption{
		conversation.WithTimeout(cfg.Session.Timeout),
	}

	contexts, closeStore, err := buildContextStore(cfg, convOpts)
	if err != nil {
		return err
	}
	defer closeStore()

	guard, err := buildGuard(cfg, contexts)
	if err != nil {
		return err
	}

	inventory := commerce.NewMemoryInventory(
		commerce.Product{ID: "sku-espresso", Name: "Espresso Beans 1kg", PriceCents: 1850, Stock: 40},
		commerce.Product{ID: "sku-grinder", Name: "Hand Grinder", PriceCents: 6500, Stock: 12},
		commerce.Product{ID: "sku-v60", Name: "Pour-over Dripper", PriceCents: 2400, Stock: 25},
	)
	carts := commerce.NewMemoryCarts()
	discounts := commerce.NewMemoryDiscounts(
		commerce.Discount{Code: "WELCOME10", PercentOff: 10, ExpiresAt: time.Now().Add(30 * 24 * time.Hour), MaxUses: 1000},
	)
	orders := commerce.NewMemoryOrders()

	registry := action.NewRegistry(logger)
	registry.Register(commerce.NewMenuHandler(inventory))
	registry.Register(commerce.NewBrowseHandler(inventory))
	registry.Register(commerce.NewCartHandler(inventory, carts))
	registry.Register(commerce.NewDiscountHandler(discounts, carts))
	registry.Register(commerce.NewCheckoutHandler(carts))
	registry.Register(commerce.NewConfirmOrderHandler(
		inventory, carts, discounts, orders, commerce.NoopPayment{},
		guard, cfg.Idempotency.TTL, logger))
	registry.Register(commerce.NewAbandonHandler(carts))
	registry.Register(commerce.NewFallbackHandler())

	messenger := messaging.NewLoggingMessenger(logger, cfg.Messaging.RatePerSecond)

	orchestrator := core.New(registry, contexts, messenger,
		core.WithLogger(logger),
		core.WithContextOptions(convOpts...))
	orchestrator.Notifier().Register(core.ObserverFunc(func(ctx context.Context, ev core.TurnEvent) {
		logger.Debug("turn observed",
			"event", ev.ID,
			"action", ev.Input.Action,
			"principal", ev.Input.Principal,
			"phase", ev.Context.Phase,
			"success", ev.Result.Success)
	}))

	return serve(orchestrator, logger)
}

func buildContextStore(cfg *config.Config, convOpts []conversation.ContextOption) (store.ContextStore, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.Open(cfg.Store.Path, convOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("opening context store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return store.NewMemoryStore(convOpts...), func() {}, nil
	}
}

func buildGuard(cfg *config.Config, contexts store.ContextStore) (idempotency.Guard, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		return idempotency.NewRedisGuard(
			cfg.Idempotency.RedisAddr,
			cfg.Idempotency.RedisPassword,
			cfg.Idempotency.RedisDB), nil
	case "sqlite":
		s, ok := contexts.(*store.SQLiteStore)
		if !ok {
			return nil, fmt.Errorf("sqlite idempotency backend requires the sqlite context store")
		}
		return idempotency.NewSQLiteGuard(s.DB())
	default:
		return idempotency.NewMemoryGuard(), nil
	}
}

// serve reads turns from stdin, one per line:
//
//	<principal> <action> [key=value ...]
//
// This is a development REPL; production deployments receive classified
// actions from the channel webhook instead.
func serve(orchestrator *core.Orchestrator, logger *slog.Logger) error {
	fmt.Println("convocart dev console — e.g.: +15550001111 show_main_menu")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			fmt.Println("usage: <principal> <action> [key=value ...]")
			continue
		}
		principal, actionName := fields[0], fields[1]
		params := parseParams(fields[2:])

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := orchestrator.HandleTurn(ctx, actionName, principal, params)
		cancel()
		if err != nil {
			logger.Error("turn failed", "action", actionName, "error", err)
			continue
		}
		for _, msg := range result.Messages {
			fmt.Printf("-> %s\n", msg.Body)
		}
	}
	return scanner.Err()
}

func parseParams(pairs []string) action.Params {
	params := make(action.Params, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(value); err == nil {
			params[key] = n
			continue
		}
		params[key] = value
	}
	return params
}
