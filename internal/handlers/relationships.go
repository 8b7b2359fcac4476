package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vidfriends/friendships/internal/logging"
	"github.com/vidfriends/friendships/internal/models"
	"github.com/vidfriends/friendships/internal/relationships"
)

const rateLimitScope = "relationships"

// RelationshipHandler exposes relationship transitions and views.
type RelationshipHandler struct {
	Engine  RelationshipEngine
	Queries RelationshipQueries
	Limiter RateLimiter
}

type pairRequest struct {
	Actor  models.ParticipantKey `json:"actor"`
	Target models.ParticipantKey `json:"target"`
}

type relationshipResponse struct {
	Relationship *models.Relationship `json:"relationship"`
}

type statusResponse struct {
	Actor             models.ParticipantKey `json:"actor"`
	Target            models.ParticipantKey `json:"target"`
	Friends           bool                  `json:"friends"`
	PendingFromTarget bool                  `json:"pendingFromTarget"`
	PendingToTarget   bool                  `json:"pendingToTarget"`
	BlockedByActor    bool                  `json:"blockedByActor"`
	BlockedByTarget   bool                  `json:"blockedByTarget"`
	CanSendRequest    bool                  `json:"canSendRequest"`
	Relationship      *models.Relationship  `json:"relationship"`
}

type connectionsResponse struct {
	Participant models.ParticipantKey `json:"participant"`
	Page        int                   `json:"page"`
	PageSize    int                   `json:"pageSize"`
	Items       []models.Connection   `json:"items"`
}

type participantsResponse struct {
	Participant models.ParticipantKey   `json:"participant"`
	Page        int                     `json:"page"`
	PageSize    int                     `json:"pageSize"`
	Items       []models.ParticipantKey `json:"items"`
}

type transitionFunc func(ctx context.Context, actor, target models.Participant) (models.Relationship, error)

// Request handles POST /api/v1/relationships/request.
func (h RelationshipHandler) Request(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "send request", func(e RelationshipEngine) transitionFunc { return e.SendRequest })
}

// Accept handles POST /api/v1/relationships/accept. Target names the sender
// of the pending request.
func (h RelationshipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept request", func(e RelationshipEngine) transitionFunc { return e.AcceptRequest })
}

// Deny handles POST /api/v1/relationships/deny.
func (h RelationshipHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "deny request", func(e RelationshipEngine) transitionFunc { return e.DenyRequest })
}

// Block handles POST /api/v1/relationships/block.
func (h RelationshipHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "block", func(e RelationshipEngine) transitionFunc { return e.Block })
}

// Remove handles POST /api/v1/relationships/remove.
func (h RelationshipHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "remove", func(e RelationshipEngine) transitionFunc {
		return func(ctx context.Context, actor, target models.Participant) (models.Relationship, error) {
			return models.Relationship{}, e.RemoveRelationship(ctx, actor, target)
		}
	})
}

// Unblock handles POST /api/v1/relationships/unblock.
func (h RelationshipHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "unblock", func(e RelationshipEngine) transitionFunc {
		return func(ctx context.Context, actor, target models.Participant) (models.Relationship, error) {
			return models.Relationship{}, e.Unblock(ctx, actor, target)
		}
	})
}

func (h RelationshipHandler) transition(w http.ResponseWriter, r *http.Request, name string, pick func(RelationshipEngine) transitionFunc) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Engine == nil {
		logger.Error("relationship engine unavailable", "operation", name)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "relationship service unavailable"})
		return
	}

	if !allowRequest(h.Limiter, r, rateLimitScope) {
		logger.Warn("relationship request rate limited", "operation", name, "client", clientIP(r))
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid relationship payload", "operation", name, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor, target := req.Actor.Normalize(), req.Target.Normalize()
	if actor.IsZero() || target.IsZero() {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "actor and target ids are required"})
		return
	}

	rel, err := pick(h.Engine)(ctx, actor, target)
	if err != nil {
		logger.Info("relationship transition rejected", "operation", name, "actor", actor.String(), "target", target.String(), "error", err)
		respondError(ctx, w, err)
		return
	}

	resp := relationshipResponse{}
	if rel.ID != "" {
		resp.Relationship = &rel
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

// Status handles GET /api/v1/relationships/status and reports every
// predicate for the actor and target named by the query string, along with
// the pair's record when there is one.
func (h RelationshipHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Engine == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "relationship service unavailable"})
		return
	}

	query := r.URL.Query()
	actor := models.Key(query.Get("kind"), query.Get("id"))
	target := models.Key(query.Get("targetKind"), query.Get("targetId"))
	if actor.IsZero() || target.IsZero() {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "id and targetId are required"})
		return
	}

	resp := statusResponse{Actor: actor, Target: target}
	checks := []struct {
		dst *bool
		fn  func() (bool, error)
	}{
		{&resp.Friends, func() (bool, error) { return h.Engine.IsFriendWith(ctx, actor, target) }},
		{&resp.PendingFromTarget, func() (bool, error) { return h.Engine.HasPendingRequestFrom(ctx, actor, target) }},
		{&resp.PendingToTarget, func() (bool, error) { return h.Engine.HasPendingRequestFrom(ctx, target, actor) }},
		{&resp.BlockedByActor, func() (bool, error) { return h.Engine.HasBlocked(ctx, actor, target) }},
		{&resp.BlockedByTarget, func() (bool, error) { return h.Engine.IsBlockedBy(ctx, actor, target) }},
		{&resp.CanSendRequest, func() (bool, error) { return h.Engine.CanSendRequest(ctx, actor, target) }},
	}
	for _, check := range checks {
		ok, err := check.fn()
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		*check.dst = ok
	}

	rel, err := h.Engine.RelationshipWith(ctx, actor, target)
	switch {
	case err == nil:
		resp.Relationship = &rel
	case errors.Is(err, relationships.ErrNoRelationship):
	default:
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

type connectionsView func(ctx context.Context, actor models.Participant, page models.Page) ([]models.Connection, error)

// Friends handles GET /api/v1/relationships/friends.
func (h RelationshipHandler) Friends(w http.ResponseWriter, r *http.Request) {
	h.connections(w, r, func(q RelationshipQueries) connectionsView { return q.ListFriends })
}

// PendingIncoming handles GET /api/v1/relationships/pending/incoming.
func (h RelationshipHandler) PendingIncoming(w http.ResponseWriter, r *http.Request) {
	h.connections(w, r, func(q RelationshipQueries) connectionsView { return q.ListPendingIncoming })
}

// PendingOutgoing handles GET /api/v1/relationships/pending/outgoing.
func (h RelationshipHandler) PendingOutgoing(w http.ResponseWriter, r *http.Request) {
	h.connections(w, r, func(q RelationshipQueries) connectionsView { return q.ListPendingOutgoing })
}

// Denied handles GET /api/v1/relationships/denied.
func (h RelationshipHandler) Denied(w http.ResponseWriter, r *http.Request) {
	h.connections(w, r, func(q RelationshipQueries) connectionsView { return q.ListDenied })
}

// Blocked handles GET /api/v1/relationships/blocked.
func (h RelationshipHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	h.connections(w, r, func(q RelationshipQueries) connectionsView { return q.ListBlocked })
}

func (h RelationshipHandler) connections(w http.ResponseWriter, r *http.Request, pick func(RelationshipQueries) connectionsView) {
	ctx, actor, page, ok := h.viewRequest(w, r)
	if !ok {
		return
	}

	items, err := pick(h.Queries)(ctx, actor, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if items == nil {
		items = []models.Connection{}
	}

	respondJSON(ctx, w, http.StatusOK, connectionsResponse{
		Participant: actor,
		Page:        page.Number,
		PageSize:    page.Size,
		Items:       items,
	})
}

// FriendsOfFriends handles GET /api/v1/relationships/friends-of-friends.
func (h RelationshipHandler) FriendsOfFriends(w http.ResponseWriter, r *http.Request) {
	ctx, actor, page, ok := h.viewRequest(w, r)
	if !ok {
		return
	}

	items, err := h.Queries.FriendsOfFriends(ctx, actor, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if items == nil {
		items = []models.ParticipantKey{}
	}

	respondJSON(ctx, w, http.StatusOK, participantsResponse{
		Participant: actor,
		Page:        page.Number,
		PageSize:    page.Size,
		Items:       items,
	})
}

func (h RelationshipHandler) viewRequest(w http.ResponseWriter, r *http.Request) (context.Context, models.ParticipantKey, models.Page, bool) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return ctx, models.ParticipantKey{}, models.Page{}, false
	}

	if h.Queries == nil {
		logging.FromContext(ctx).Error("relationship queries unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "relationship service unavailable"})
		return ctx, models.ParticipantKey{}, models.Page{}, false
	}

	query := r.URL.Query()
	actor := models.Key(query.Get("kind"), query.Get("id"))
	if actor.IsZero() {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return ctx, models.ParticipantKey{}, models.Page{}, false
	}

	page, err := parsePage(query)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return ctx, models.ParticipantKey{}, models.Page{}, false
	}

	return ctx, actor, page, true
}

func parsePage(query url.Values) (models.Page, error) {
	var page models.Page
	if raw := query.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return models.Page{}, fmt.Errorf("invalid pageSize %q", raw)
		}
		page.Size = size
	}
	page.Number = 1
	if raw := query.Get("page"); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil || number < 1 {
			return models.Page{}, fmt.Errorf("invalid page %q", raw)
		}
		page.Number = number
	}
	return page, nil
}
