package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	runmcp "github.com/foward955/runner/internal/mcp"
	"github.com/foward955/runner/internal/notify"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// notificationBacklog is how many notifications script_notifications can
// replay.
const notificationBacklog = 1000

var (
	flagHTTPAddr     string
	flagInstructions bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server (stdio, or streamable HTTP with --http)",
	Args:  cobra.NoArgs,
	RunE:  doMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&flagHTTPAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	mcpCmd.Flags().BoolVar(&flagInstructions, "instructions", false, "print model instructions and exit")
}

func doMCP(cmd *cobra.Command, _ []string) error {
	if flagInstructions {
		fmt.Print(runmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	notes := notify.NewBuffer(notificationBacklog)
	sup, store, err := newSupervisor(notify.Multi(notes, notify.Logger(logger)))
	if err != nil {
		return err
	}
	defer func() {
		sup.Stop()
		_, _ = sup.Wait(context.Background())
	}()

	server := runmcp.NewServer(sup, store, notes, workspace, runmcp.WithLogger(logger))

	if flagHTTPAddr != "" {
		return serveHTTP(ctx, server, flagHTTPAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
