package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/session"
)

// sessionContextKey is the context key for storing session context
type contextKey string

const sessionContextKey contextKey = "session"

// stdioSessionID names the single session of a transport without session IDs
const stdioSessionID = "stdio"

// getSessionFromContext retrieves the session context from the request context.
func getSessionFromContext(ctx context.Context) (*session.Context, error) {
	sessionCtx, ok := ctx.Value(sessionContextKey).(*session.Context)
	if !ok || sessionCtx == nil {
		return nil, fmt.Errorf("session context not found in request context")
	}
	return sessionCtx, nil
}

func sessionID(req mcp.Request) string {
	if s := req.GetSession(); s != nil && s.ID() != "" {
		return s.ID()
	}
	return stdioSessionID
}

// createSessionInjectionMiddleware creates middleware that attaches the
// caller's session, and with it the session's controller, to every request.
// The session outlives the request context.
func createSessionInjectionMiddleware(sessionMgr *session.Manager) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			sessionCtx, err := sessionMgr.GetOrCreateSession(ctx, sessionID(req))
			if err != nil {
				return nil, fmt.Errorf("failed to get/create session: %w", err)
			}

			sessionCtx.UpdateLastAccessed()
			ctx = context.WithValue(ctx, sessionContextKey, sessionCtx)

			return next(ctx, method, req)
		}
	}
}

// createLoggingMiddleware creates middleware that logs all MCP method calls
func createLoggingMiddleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			id := sessionID(req)

			log.Printf("[REQUEST] Session: %s | Method: %s", id, method)

			result, err := next(ctx, method, req)

			duration := time.Since(start)
			if err != nil {
				log.Printf("[RESPONSE] Session: %s | Method: %s | Status: ERROR | Duration: %v | Error: %v",
					id, method, duration, err)
			} else {
				log.Printf("[RESPONSE] Session: %s | Method: %s | Status: OK | Duration: %v",
					id, method, duration)
			}

			return result, err
		}
	}
}
