// Package api serves the operator's HTTP interface: block listing and
// production, transfer submission, root-chain deposit and exit helpers,
// debug listings and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eth2030/plasma/core"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/metrics"
	"github.com/eth2030/plasma/rootchain"
)

const (
	// RouteBlocks lists every block from genesis.
	RouteBlocks = "/blocks"
	// RouteMineBlock runs one block production cycle.
	RouteMineBlock = "/mineBlock"
	// RouteTransact admits a transfer into the pool.
	RouteTransact = "/transact"
	// RouteDeposit sends a deposit to the root-chain contract.
	RouteDeposit = "/deposit"
	// RouteProof returns the inclusion proof of one transaction slot.
	RouteProof = "/proof/:" + ParameterBlkNum + "/:" + ParameterTxIndex
	// RouteWithdrawCreate starts an exit for an output.
	RouteWithdrawCreate = "/withdraw/create"
	// RouteWithdrawChallenge challenges an exit with a spending transaction.
	RouteWithdrawChallenge = "/withdraw/challenge"
	// RouteWithdrawFinalize completes matured exits.
	RouteWithdrawFinalize = "/withdraw/finalize"
	// RouteUTXO lists the unspent outputs.
	RouteUTXO = "/utxo"
	// RoutePool lists the pending transfers.
	RoutePool = "/pool"
	// RouteMetrics exposes Prometheus metrics.
	RouteMetrics = "/metrics"

	ParameterBlkNum  = "blkNum"
	ParameterTxIndex = "txIndex"
)

// MaxBodyLength limits request bodies.
const MaxBodyLength = "1M"

// Chain is the part of the chain engine the API serves.
type Chain interface {
	Blocks() []*types.Block
	GenerateNextBlock(ctx context.Context) (*types.Block, error)
	Transact(ctx context.Context, req core.TransferRequest) (*types.Transaction, error)
	Proof(blkNum uint64, txIndex int) (*core.ProofResult, error)
	UTXOs() []*types.UTXO
	Pending() []*types.Transaction
}

// Config configures the HTTP server.
type Config struct {
	// Metrics mounts RouteMetrics.
	Metrics bool
	// RequestTimeout bounds handlers that call the root chain.
	RequestTimeout time.Duration
}

// Server is the operator's HTTP front end.
type Server struct {
	config Config
	chain  Chain
	exits  rootchain.Exits
	echo   *echo.Echo
	log    *log.Logger
}

// New creates a Server and registers its routes. exits may be nil, in which
// case the deposit and withdrawal routes answer 501.
func New(config Config, chain Chain, exits rootchain.Exits) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		config: config,
		chain:  chain,
		exits:  exits,
		echo:   e,
		log:    log.Default().Module("api"),
	}
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(MaxBodyLength))
	e.Use(s.requestMetrics)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.GET(RouteBlocks, s.getBlocks)
	e.POST(RouteMineBlock, s.mineBlock)
	e.POST(RouteTransact, s.transact)
	e.POST(RouteDeposit, s.deposit)
	e.GET(RouteProof, s.getProof)
	e.POST(RouteWithdrawCreate, s.withdrawCreate)
	e.POST(RouteWithdrawChallenge, s.withdrawChallenge)
	e.POST(RouteWithdrawFinalize, s.withdrawFinalize)
	e.GET(RouteUTXO, s.getUTXOs)
	e.GET(RoutePool, s.getPool)
	if s.config.Metrics {
		e.GET(RouteMetrics, echo.WrapHandler(metrics.Handler()))
	}
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr and blocks until the server is shut down. It
// returns nil after a clean Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("starting HTTP server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("stopping HTTP server")
	return s.echo.Shutdown(ctx)
}

// requestContext bounds a handler's root-chain calls.
func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		code := c.Response().Status
		metrics.APIRequests.WithLabelValues(c.Path(), strconv.Itoa(code)).Inc()
		s.log.Debug("request", "method", c.Request().Method, "path", c.Request().URL.Path,
			"code", code, "took", time.Since(start))
		return nil
	}
}
