package simulator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"labrunner/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

const shutdownTimeout = 5 * time.Second

// EndpointPath is where the streamable HTTP transport answers by default.
const EndpointPath = "/mcp"

// ServeHTTP serves s over streamable HTTP on addr until ctx is cancelled.
func ServeHTTP(ctx context.Context, s *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Simulator", "Serving automation bridge on http://%s%s", addr, EndpointPath)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Info("Simulator", "Shutting down automation bridge")
		return httpServer.Shutdown(shutdownCtx)
	}
}

// ServeStdio serves s over stdin/stdout until ctx is cancelled or in closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
