package handlers

import (
	"context"
	"net/http"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.StoreName, Check: deps.HealthCheck}
	relationships := RelationshipHandler{Engine: deps.Engine, Queries: deps.Queries, Limiter: deps.Limiter}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/relationships/request", relationships.Request)
	mux.HandleFunc("/api/v1/relationships/accept", relationships.Accept)
	mux.HandleFunc("/api/v1/relationships/deny", relationships.Deny)
	mux.HandleFunc("/api/v1/relationships/remove", relationships.Remove)
	mux.HandleFunc("/api/v1/relationships/block", relationships.Block)
	mux.HandleFunc("/api/v1/relationships/unblock", relationships.Unblock)
	mux.HandleFunc("/api/v1/relationships/status", relationships.Status)
	mux.HandleFunc("/api/v1/relationships/friends", relationships.Friends)
	mux.HandleFunc("/api/v1/relationships/pending/incoming", relationships.PendingIncoming)
	mux.HandleFunc("/api/v1/relationships/pending/outgoing", relationships.PendingOutgoing)
	mux.HandleFunc("/api/v1/relationships/denied", relationships.Denied)
	mux.HandleFunc("/api/v1/relationships/blocked", relationships.Blocked)
	mux.HandleFunc("/api/v1/relationships/friends-of-friends", relationships.FriendsOfFriends)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Engine  RelationshipEngine
	Queries RelationshipQueries
	Limiter RateLimiter

	StoreName   string
	HealthCheck func(ctx context.Context) error
}
