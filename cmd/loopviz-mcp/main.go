package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/config"
	"github.com/yousuf/loopviz/internal/server"
	"github.com/yousuf/loopviz/internal/session"
)

func main() {
	// Load .env for CONFIG_PATH, PORT and TRANSPORT
	_ = godotenv.Load()

	// CONFIG_PATH is optional; PORT and TRANSPORT override the file
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded configuration: transport=%s playback=%s interval=%v max_steps=%d",
		cfg.Server.Transport, cfg.Playback.Mode, cfg.Playback.Interval(), cfg.Recording.MaxSteps)

	sessionMgr := session.NewManager(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionMgr.StartReaper(ctx, time.Minute)

	if cfg.Server.Transport == "stdio" {
		// stdout carries the protocol, so logs stay on stderr
		log.Println("loopviz MCP server running on stdio")
		if err := server.NewMcpServer(sessionMgr).Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			log.Printf("Server failed: %v", err)
		}
		closeSessions(sessionMgr)
		return
	}

	// One MCP server per streamable session; sessions share the manager
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return server.NewMcpServer(sessionMgr)
	}, &mcp.StreamableHTTPOptions{
		Stateless:      false,
		JSONResponse:   false,
		SessionTimeout: cfg.Session.IdleTimeout(),
	})

	port := strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("loopviz MCP server listening on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	closeSessions(sessionMgr)
	log.Println("Server stopped")
}

func closeSessions(sessionMgr *session.Manager) {
	if err := sessionMgr.CloseAll(); err != nil {
		log.Printf("Error closing sessions: %v", err)
	}
}
