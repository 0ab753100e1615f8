// Command gas-estimator runs the gas-estimation JSON-RPC server: a single
// estimate_gas method backed by an in-process EVM simulation that lazily
// hydrates state from a remote Ethereum node.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/lazovicff/gas-estimator/internal/gasrpc"
	"github.com/lazovicff/gas-estimator/internal/hydrator"
	"github.com/lazovicff/gas-estimator/internal/rpcclient"
	"github.com/lazovicff/gas-estimator/internal/simulate"
)

const defaultRPCURL = "https://eth-mainnet.alchemyapi.io/v2/demo"

func main() {
	app := &cli.App{
		Name:  "gas-estimator",
		Usage: "estimate EVM call gas by simulating against lazily-hydrated state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Ethereum JSON-RPC endpoint to hydrate state from",
				EnvVars: []string{"ETH_RPC_URL"},
				Value:   defaultRPCURL,
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "address to bind the estimate_gas JSON-RPC server on",
				Value: "127.0.0.1:3030",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		gethlog.Error("gas-estimator exited with error", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	rpcURL := c.String("rpc-url")
	listenAddr := c.String("listen-addr")

	fmt.Printf("Using Ethereum RPC: %s\n", rpcURL)

	client := rpcclient.NewClient(rpcURL)
	h := hydrator.New(client)

	fmt.Println("Testing connection to Ethereum network...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	info, err := h.FetchNetworkInfo(ctx)
	cancel()
	if err != nil {
		fmt.Printf("    Warning: could not fetch network info: %v\n", err)
		fmt.Println("    Server will still start, but gas estimation may be limited")
	} else {
		fmt.Println("    Connected to Ethereum network!")
		fmt.Printf("    Current Gas Price: %s wei\n", info.CurrentGasPrice.String())
		fmt.Printf("    Latest Block: %d\n", info.LatestBlock)
	}

	driver := simulate.NewDriver(h)
	estimator := simulate.NewEstimator(driver, h)
	server := gasrpc.NewServer(estimator)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server.Handler(),
	}

	fmt.Printf("Starting JSON-RPC server on %s\n", listenAddr)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Println("Gas Estimation JSON-RPC Server is running!")
	fmt.Printf("Address: http://%s\n", listenAddr)
	fmt.Println("Endpoint: estimate_gas")
	fmt.Println("Press Ctrl+C to stop the server")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		gethlog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	fmt.Println("Server stopped successfully")
	return nil
}
