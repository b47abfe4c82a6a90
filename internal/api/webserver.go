package api

import (
	"context"
	"log"
	"net/http"
	"time"
)

// WebServer owns the HTTP listener for the API server and handles graceful
// shutdown when its context is cancelled.
type WebServer struct {
	address string
	server  *http.Server
}

// NewWebServer builds the full handler chain for srv: API routes, optional
// database admin routes, any extra route attachers, and request logging.
func NewWebServer(address string, srv *Server, attach ...func(*http.ServeMux)) *WebServer {
	mux := srv.ServeMux()
	if srv.db != nil {
		srv.db.AttachAdminRoutes(mux)
	}
	for _, fn := range attach {
		fn(mux)
	}

	return &WebServer{
		address: address,
		server: &http.Server{
			Addr:    address,
			Handler: LoggingMiddleware(mux),
		},
	}
}

// Start begins the HTTP server in a goroutine and blocks until ctx is
// cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
