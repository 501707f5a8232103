package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/blockbill/blockbill/app/controllers"
	"github.com/blockbill/blockbill/app/repository"
	"github.com/blockbill/blockbill/internal/pkg/billing"
	"github.com/blockbill/blockbill/internal/pkg/chain"
	"github.com/blockbill/blockbill/internal/pkg/database"
	"github.com/blockbill/blockbill/internal/pkg/env"
	"github.com/blockbill/blockbill/internal/pkg/forwarder"
	"github.com/blockbill/blockbill/internal/pkg/negotiation"
	"github.com/blockbill/blockbill/internal/pkg/reconcile"
	"github.com/blockbill/blockbill/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("chain manager start failed: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		manager.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the stores, the billing platform client, the chain
// client and the HTTP surface together.
func NewApplication() (*fiber.App, *chain.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	platform := billing.NewRESTClientFromEnv()

	networkName := env.GetEnv("BTC_NETWORK", "testnet")
	params, err := chain.NetworkParams(networkName)
	if err != nil {
		log.Fatalf("invalid BTC_NETWORK: %v", err)
	}

	client := chain.NewRPCClient(chain.RPCConfig{
		Host:         env.GetEnv("BTC_RPC_HOST", "localhost:18332"),
		User:         env.GetEnv("BTC_RPC_USER", ""),
		Pass:         env.GetEnv("BTC_RPC_PASS", ""),
		Params:       params,
		PollInterval: env.GetEnvDuration("BTC_POLL_INTERVAL", 30*time.Second),
		TxSource:     repos.PendingPayment.ListSubmittedTxHashes,
	})

	depth := env.GetEnvInt("BTC_CONFIDENCE_DEPTH", 6)
	engine := reconcile.NewEngine(repos.PendingPayment, platform, depth)
	watcher := reconcile.NewWatcher(engine, depth)

	fwd := forwarder.New(
		client,
		params,
		env.GetEnv("BTC_FORWARD_ADDRESS", ""),
		btcutil.Amount(env.GetEnvInt64("BTC_FORWARD_MIN_BALANCE", 10_000_000)),
		env.GetEnvDuration("BTC_FORWARD_INTERVAL", time.Hour),
	)

	manager := chain.NewManager(client, fwd, watcher.OnConfidenceChanged, env.GetEnvBool("BTC_GENERATE_KEY", false))

	pluginNames := strings.Split(env.GetEnv("BILLING_PLUGIN_NAMES", "blockbill-bitcoin"), ",")
	listener := billing.NewListener(platform, engine, pluginNames)

	service := negotiation.NewService(
		repos,
		platform,
		client,
		networkName,
		env.GetEnv("APP_BASE_URL", "http://localhost:4000"),
	)
	pc := controllers.NewPaymentController(service, client)
	nc := controllers.NewNotificationController(listener)

	app := fiber.New(fiber.Config{
		AppName: "blockbill",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app, pc, nc)

	return app, manager
}
