package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/eth2030/plasma/api"
	"github.com/eth2030/plasma/core"
	"github.com/eth2030/plasma/core/rawdb"
	"github.com/eth2030/plasma/crypto"
	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/rootchain"
	"github.com/eth2030/plasma/txpool"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Node is a running plasma operator.
type Node struct {
	config Config
	log    *log.Logger

	keys      *crypto.KeyStore
	db        rawdb.Database
	gateway   rootchain.Backend
	client    *rootchain.Client // set for the rpc gateway
	chain     *core.Chain
	server    *api.Server
	logCloser io.Closer

	mu      sync.Mutex
	running bool
}

// New creates a Node: it opens the block store, connects the gateway and
// loads the chain. Network services start with Run.
func New(ctx context.Context, config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	n := &Node{config: config, keys: crypto.NewKeyStore()}
	n.setupLogger()

	for i, key := range config.RootChain.Keys {
		addr, err := n.keys.Import(key)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		n.log.Info("imported key", "address", addr.Hex())
	}
	operator, err := n.operator()
	if err != nil {
		n.Close()
		return nil, err
	}

	if err := n.openDatabase(); err != nil {
		n.Close()
		return nil, err
	}
	if err := n.openGateway(ctx, operator); err != nil {
		n.Close()
		return nil, err
	}

	fee, _ := config.fee()
	chainConfig := core.DefaultChainConfig()
	chainConfig.Operator = operator
	if fee != nil {
		chainConfig.Fee = fee
	}
	chainConfig.StagedCycle = config.Chain.Staged
	if config.Chain.PoolSize > 0 {
		chainConfig.Pool = txpool.Config{MaxSize: config.Chain.PoolSize}
	}
	if config.DB.Backend == DBLevelDB {
		chainConfig.Journal = config.ResolvePath("transfers.journal")
	}
	n.chain, err = core.NewChain(chainConfig, n.gateway, n.db)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("init chain: %w", err)
	}
	if gw, ok := n.gateway.(*rootchain.MemoryGateway); ok {
		if err := gw.Restore(n.chain.Headers()); err != nil {
			n.Close()
			return nil, fmt.Errorf("restore gateway: %w", err)
		}
	}

	timeout, _ := parseDuration(config.HTTP.Timeout)
	n.server = api.New(api.Config{Metrics: config.HTTP.Metrics, RequestTimeout: timeout}, n.chain, n.gateway)
	n.log.Info("node initialized", "operator", operator.Hex(), "head", n.chain.Head().Number(),
		"gateway", config.RootChain.Gateway, "db", config.DB.Backend, "staged", config.Chain.Staged)
	return n, nil
}

func (n *Node) setupLogger() {
	level, _ := log.ParseLevel(n.config.Log.Level)
	var logger *log.Logger
	if n.config.Log.File != "" {
		logger, n.logCloser = log.NewFile(log.FileConfig{
			Path:       n.config.ResolvePath(n.config.Log.File),
			MaxSizeMB:  n.config.Log.MaxSizeMB,
			MaxBackups: n.config.Log.MaxBackups,
			MaxAgeDays: n.config.Log.MaxAgeDays,
		}, level)
	} else {
		logger = log.New(level)
	}
	log.SetDefault(logger)
	n.log = logger.Module("node")
}

// operator resolves the block signer. The memory gateway falls back to the
// first imported key, or a fresh one.
func (n *Node) operator() (common.Address, error) {
	if n.config.Chain.Operator != "" {
		return common.HexToAddress(n.config.Chain.Operator), nil
	}
	if accounts := n.keys.Accounts(); len(accounts) > 0 {
		return accounts[0], nil
	}
	addr, err := n.keys.NewAccount()
	if err != nil {
		return common.Address{}, err
	}
	n.log.Warn("generated ephemeral operator key", "address", addr.Hex())
	return addr, nil
}

func (n *Node) openDatabase() error {
	switch n.config.DB.Backend {
	case DBLevelDB:
		if err := os.MkdirAll(n.config.DataDir, 0o755); err != nil {
			return fmt.Errorf("create datadir: %w", err)
		}
		db, err := rawdb.OpenLevelDB(n.config.ResolvePath("chaindata"), n.config.DB.Cache, n.config.DB.Handles)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		n.db = db
	default:
		n.db = rawdb.NewMemoryDB()
	}
	return nil
}

func (n *Node) openGateway(ctx context.Context, operator common.Address) error {
	if n.config.RootChain.Gateway == GatewayMemory {
		if _, ok := n.keys.Key(operator); !ok {
			return fmt.Errorf("memory gateway: no key for operator %s", operator.Hex())
		}
		n.gateway = rootchain.NewMemoryGateway(n.keys, operator)
		return nil
	}
	cc := rootchain.DefaultClientConfig()
	cc.Contract = common.HexToAddress(n.config.RootChain.Contract)
	cc.Operator = operator
	cc.FromBlock = n.config.RootChain.FromBlock
	if n.config.RootChain.GasLimit > 0 {
		cc.GasLimit = n.config.RootChain.GasLimit
	}
	client, err := rootchain.Dial(ctx, n.config.RootChain.URL, cc, n.keys)
	if err != nil {
		return err
	}
	n.client = client
	n.gateway = client
	return nil
}

// Run serves the API, and produces blocks when a block interval is set,
// until ctx is cancelled or a service fails.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return errors.New("node already running")
	}
	n.running = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.server.Start(n.config.HTTPAddr())
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := n.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Warn("HTTP shutdown failed", "err", err)
		}
		return nil
	})
	if interval, _ := parseDuration(n.config.Chain.BlockInterval); interval > 0 {
		g.Go(func() error {
			n.produceBlocks(ctx, interval)
			return nil
		})
	}
	err := g.Wait()
	n.log.Info("node stopped")
	return err
}

// produceBlocks runs a production cycle every interval. Failed cycles are
// logged and retried on the next tick.
func (n *Node) produceBlocks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	n.log.Info("block production started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.chain.GenerateNextBlock(ctx); err != nil && ctx.Err() == nil {
				n.log.Warn("block production failed", "err", err)
			}
		}
	}
}

// Close releases the gateway connection, the block store and the log file.
func (n *Node) Close() error {
	var errs []error
	if n.chain != nil {
		if err := n.chain.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if n.client != nil {
		n.client.Close()
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if n.logCloser != nil {
		if err := n.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Chain returns the chain engine.
func (n *Node) Chain() *core.Chain { return n.chain }

// Gateway returns the root-chain gateway.
func (n *Node) Gateway() rootchain.Backend { return n.gateway }

// KeyStore returns the unlocked keys.
func (n *Node) KeyStore() *crypto.KeyStore { return n.keys }

// Handler returns the API handler.
func (n *Node) Handler() http.Handler { return n.server.Handler() }

// Config returns the node configuration.
func (n *Node) Config() Config { return n.config }

// Running reports whether Run is active.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}
