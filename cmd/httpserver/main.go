package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/sui-escrow-gateway/api/clients"
	"github.com/ruteri/sui-escrow-gateway/chain"
	"github.com/ruteri/sui-escrow-gateway/chain/simulated"
	"github.com/ruteri/sui-escrow-gateway/cmd/flags"
	"github.com/ruteri/sui-escrow-gateway/common"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/executor"
	"github.com/ruteri/sui-escrow-gateway/httpserver"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/ledger"
	"github.com/ruteri/sui-escrow-gateway/metrics"
	"github.com/ruteri/sui-escrow-gateway/query"
	"github.com/ruteri/sui-escrow-gateway/session"
	"github.com/ruteri/sui-escrow-gateway/storage"
	"github.com/ruteri/sui-escrow-gateway/zklogin"
	"github.com/urfave/cli/v2"
)

const simulatedNetwork = "simulated"

var gatewayFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: []string{"ZKESCROW_LISTEN_ADDR"},
	},
	flags.NetworkFlag,
	flags.RpcAddrFlag,
	&cli.StringFlag{
		Name:    "faucet-addr",
		Usage:   "gas faucet endpoint. Defaults to the network's public faucet",
		EnvVars: []string{"ZKESCROW_FAUCET_ADDR"},
	},
	&cli.StringFlag{
		Name:    "package-id",
		Usage:   "object id of the published escrow package (required unless simulated)",
		EnvVars: []string{"ZKESCROW_PACKAGE_ID"},
	},
	&cli.StringFlag{
		Name:    "config-object-id",
		Usage:   "object id of the shared platform configuration (required unless simulated)",
		EnvVars: []string{"ZKESCROW_CONFIG_OBJECT_ID"},
	},
	&cli.StringFlag{
		Name:    "clock-object-id",
		Value:   "0x6",
		Usage:   "object id of the shared system clock",
		EnvVars: []string{"ZKESCROW_CLOCK_OBJECT_ID"},
	},
	&cli.Uint64Flag{
		Name:    "gas-budget",
		Value:   executor.DefaultGasBudget,
		Usage:   "gas budget of submitted transactions in MIST",
		EnvVars: []string{"ZKESCROW_GAS_BUDGET"},
	},
	&cli.StringFlag{
		Name:    "redirect-url",
		Value:   "http://127.0.0.1:8080/api/auth/callback",
		Usage:   "OAuth redirect URL registered with the providers",
		EnvVars: []string{"ZKESCROW_REDIRECT_URL"},
	},
	&cli.StringFlag{
		Name:    "google-client-id",
		EnvVars: []string{"ZKESCROW_GOOGLE_CLIENT_ID"},
	},
	&cli.StringFlag{
		Name:    "facebook-client-id",
		EnvVars: []string{"ZKESCROW_FACEBOOK_CLIENT_ID"},
	},
	&cli.StringFlag{
		Name:    "apple-client-id",
		EnvVars: []string{"ZKESCROW_APPLE_CLIENT_ID"},
	},
	&cli.StringFlag{
		Name:    "key-scheme",
		Value:   "ed25519",
		Usage:   "ephemeral key scheme: ed25519 or secp256k1",
		EnvVars: []string{"ZKESCROW_KEY_SCHEME"},
	},
	&cli.StringFlag{
		Name:    "salt-service-url",
		Value:   clients.DefaultSaltServiceURL,
		EnvVars: []string{"ZKESCROW_SALT_SERVICE_URL"},
	},
	&cli.StringFlag{
		Name:    "prover-url",
		Value:   clients.DefaultProverURL,
		EnvVars: []string{"ZKESCROW_PROVER_URL"},
	},
	&cli.Uint64Flag{
		Name:    "max-epoch-offset",
		Value:   httpserver.DefaultEpochOffset,
		Usage:   "epochs past the current one a new session stays valid",
		EnvVars: []string{"ZKESCROW_MAX_EPOCH_OFFSET"},
	},
	&cli.DurationFlag{
		Name:    "flow-ttl",
		Value:   zklogin.DefaultFlowTTL,
		Usage:   "how long a started login waits for the provider callback",
		EnvVars: []string{"ZKESCROW_FLOW_TTL"},
	},
	&cli.StringFlag{
		Name:    "session-store",
		Value:   "bolt",
		Usage:   "session store: memory, bolt or vault",
		EnvVars: []string{"ZKESCROW_SESSION_STORE"},
	},
	&cli.StringFlag{
		Name:    "session-db",
		Value:   "zkescrow-session.db",
		Usage:   "bbolt file of the bolt session store",
		EnvVars: []string{"ZKESCROW_SESSION_DB"},
	},
	&cli.StringFlag{
		Name:    "session-passphrase",
		Usage:   "passphrase encrypting the bolt session record",
		EnvVars: []string{"ZKESCROW_SESSION_PASSPHRASE"},
	},
	&cli.StringFlag{
		Name:    "vault-addr",
		Value:   "http://127.0.0.1:8200",
		EnvVars: []string{"ZKESCROW_VAULT_ADDR", "VAULT_ADDR"},
	},
	&cli.StringFlag{
		Name:    "vault-token",
		EnvVars: []string{"ZKESCROW_VAULT_TOKEN", "VAULT_TOKEN"},
	},
	&cli.StringFlag{
		Name:    "vault-mount",
		Value:   "secret",
		EnvVars: []string{"ZKESCROW_VAULT_MOUNT"},
	},
	&cli.StringFlag{
		Name:    "vault-path",
		Value:   "zkescrow/session",
		EnvVars: []string{"ZKESCROW_VAULT_PATH"},
	},
	&cli.StringFlag{
		Name:    "ledger-db",
		Usage:   "SQLite file of the transaction ledger. Records are kept in memory when empty",
		EnvVars: []string{"ZKESCROW_LEDGER_DB"},
	},
	&cli.StringSliceFlag{
		Name:    "pinning-backend",
		Usage:   "storage backend URI for pinned content (repeatable): pinata://, ipfs://, s3://, file://",
		EnvVars: []string{"ZKESCROW_PINNING_BACKEND"},
	},
	&cli.StringFlag{
		Name:    "pin-gateway",
		Value:   storage.DefaultPinataGateway,
		Usage:   "public gateway pinned content is served from",
		EnvVars: []string{"ZKESCROW_PIN_GATEWAY"},
	},
	flags.LogServiceFlagFn("zkescrow-gateway"),
}

func main() {
	app := &cli.App{
		Name:  "zkescrow-gateway",
		Usage: "Serve the zkLogin escrow gateway API",
		Flags: append(gatewayFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			chainClient, faucet, builderCfg, closeChain, err := setupChain(ctx, cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up chain access", "err", err)
				return err
			}
			defer closeChain()

			builder, err := escrow.NewBuilder(builderCfg)
			if err != nil {
				logger.Error("Failed to create escrow builder", "err", err)
				return err
			}

			sessions, closeSessions, err := setupSessionStore(cCtx, logger)
			if err != nil {
				logger.Error("Failed to open session store", "err", err)
				return err
			}
			defer closeSessions()

			records, closeLedger, err := setupLedger(ctx, cCtx, logger)
			if err != nil {
				logger.Error("Failed to open transaction ledger", "err", err)
				return err
			}
			defer closeLedger()

			pins, err := setupPinning(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up pinning backends", "err", err)
				return err
			}

			scheme, err := cryptoutils.ParseSignatureScheme(cCtx.String("key-scheme"))
			if err != nil {
				logger.Error("Invalid key-scheme", "err", err)
				return fmt.Errorf("%w: %v", interfaces.ErrConfiguration, err)
			}

			providers := zklogin.WithClientIDs(zklogin.DefaultProviders(), map[interfaces.Provider]string{
				interfaces.ProviderGoogle:   cCtx.String("google-client-id"),
				interfaces.ProviderFacebook: cCtx.String("facebook-client-id"),
				interfaces.ProviderApple:    cCtx.String("apple-client-id"),
			})
			orchestrator := zklogin.NewOrchestrator(zklogin.Config{
				Providers:   providers,
				RedirectURL: cCtx.String("redirect-url"),
				KeyScheme:   scheme,
				FlowTTL:     cCtx.Duration("flow-ttl"),
			},
				clients.NewSaltClient(cCtx.String("salt-service-url")),
				clients.NewProverClient(cCtx.String("prover-url")),
				sessions, chainClient, logger)

			exec := executor.New(chainClient, records, metricsSrv.Collectors, executor.Config{
				GasBudget: cCtx.Uint64("gas-budget"),
			}, logger)

			handler := httpserver.NewHandler(httpserver.HandlerConfig{
				Auth:        orchestrator,
				Sessions:    sessions,
				Executor:    exec,
				Builder:     builder,
				Query:       query.New(chainClient, builderCfg.PackageID, logger),
				Ledger:      records,
				Pins:        pins,
				Faucet:      faucet,
				Metrics:     metricsSrv.Collectors,
				EpochOffset: cCtx.Uint64("max-epoch-offset"),
			}, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			cfg.Metrics = metricsSrv
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "package", builderCfg.PackageID.String())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type chainAccess interface {
	interfaces.ChainClient
	zklogin.EpochSource
}

// setupChain connects to a Sui network, or starts an in-memory chain for the
// simulated network. The faucet is nil where the network has none.
func setupChain(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (chainAccess, interfaces.GasFaucet, escrow.BuilderConfig, func(), error) {
	var builderCfg escrow.BuilderConfig

	if cCtx.String(flags.NetworkFlag.Name) == simulatedNetwork {
		admin, err := simulated.NewKeySigner(cryptoutils.SchemeEd25519)
		if err != nil {
			return nil, nil, builderCfg, nil, err
		}
		backend := simulated.NewBackend(simulated.Config{Admin: admin.Address()}, logger)
		builderCfg.PackageID = backend.PackageID()
		builderCfg.ConfigID = backend.ConfigID()
		logger.Warn("Using the simulated chain, state is lost on exit", "admin", admin.Address().String())
		return backend, backend, builderCfg, func() {}, nil
	}

	network, err := chain.ParseNetwork(cCtx.String(flags.NetworkFlag.Name))
	if err != nil {
		return nil, nil, builderCfg, nil, err
	}

	if builderCfg.PackageID, err = interfaces.ParseAddress(cCtx.String("package-id")); err != nil {
		return nil, nil, builderCfg, nil, fmt.Errorf("%w: package-id: %v", interfaces.ErrConfiguration, err)
	}
	if builderCfg.ConfigID, err = interfaces.ParseAddress(cCtx.String("config-object-id")); err != nil {
		return nil, nil, builderCfg, nil, fmt.Errorf("%w: config-object-id: %v", interfaces.ErrConfiguration, err)
	}
	if builderCfg.ClockID, err = interfaces.ParseAddress(cCtx.String("clock-object-id")); err != nil {
		return nil, nil, builderCfg, nil, fmt.Errorf("%w: clock-object-id: %v", interfaces.ErrConfiguration, err)
	}

	rpcAddr := cCtx.String(flags.RpcAddrFlag.Name)
	if rpcAddr == "" {
		rpcAddr = network.FullnodeURL()
	}
	logger.Info("Connecting to Sui RPC", "network", string(network), "address", rpcAddr)
	client, err := chain.Dial(ctx, rpcAddr, logger)
	if err != nil {
		return nil, nil, builderCfg, nil, err
	}

	var faucet interfaces.GasFaucet
	faucetAddr := cCtx.String("faucet-addr")
	if faucetAddr == "" {
		faucetAddr = network.FaucetURL()
	}
	if f, err := chain.NewFaucetWithURL(faucetAddr, logger); err == nil {
		faucet = f
	} else {
		logger.Info("Faucet disabled", "network", string(network))
	}

	return client, faucet, builderCfg, client.Close, nil
}

func setupSessionStore(cCtx *cli.Context, logger *slog.Logger) (interfaces.SessionStore, func(), error) {
	switch kind := cCtx.String("session-store"); kind {
	case "memory":
		logger.Warn("Sessions are kept in memory and lost on exit")
		return session.NewMemoryStore(), func() {}, nil
	case "bolt":
		passphrase := cCtx.String("session-passphrase")
		if passphrase == "" {
			logger.Warn("session-passphrase is not set, the session record is stored unencrypted")
		}
		store, err := session.OpenBoltStore(cCtx.String("session-db"), passphrase)
		if err != nil {
			return nil, nil, err
		}
		return store, closer(store, logger), nil
	case "vault":
		store, err := session.NewVaultStore(
			cCtx.String("vault-addr"),
			cCtx.String("vault-token"),
			cCtx.String("vault-mount"),
			cCtx.String("vault-path"),
			logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: invalid session-store %q", interfaces.ErrConfiguration, kind)
	}
}

func setupLedger(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (interfaces.TransactionLedger, func(), error) {
	path := cCtx.String("ledger-db")
	if path == "" {
		return ledger.NewMemoryLedger(), func() {}, nil
	}
	l, err := ledger.NewSQLiteLedger(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Transaction ledger opened", "path", path)
	return l, closer(l, logger), nil
}

// setupPinning returns nil when no backend is configured.
func setupPinning(cCtx *cli.Context, logger *slog.Logger) (*storage.MetadataStore, error) {
	uris := cCtx.StringSlice("pinning-backend")
	if len(uris) == 0 {
		logger.Info("No pinning backend configured, pinning endpoints are disabled")
		return nil, nil
	}

	locs := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}

	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locs)
	if err != nil {
		return nil, err
	}
	if !backend.Available(cCtx.Context) {
		logger.Warn("No pinning backend is reachable")
	}
	return storage.NewMetadataStore(backend, cCtx.String("pin-gateway")), nil
}

func closer(c io.Closer, logger *slog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("Failed to close", "err", err)
		}
	}
}
