package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/collab"
	"github.com/KafClaw/KafClaw/internal/a2a/convstore"
	"github.com/KafClaw/KafClaw/internal/a2a/notify"
	"github.com/KafClaw/KafClaw/internal/a2a/ratelimit"
)

// handlePing answers an unauthenticated liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if r.Method != http.MethodGet {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}
	writeJSON(w, traceID, http.StatusOK, map[string]any{"pong": true, "timestamp": time.Now().UTC()})
}

// handleStatus answers an unauthenticated capabilities probe.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if r.Method != http.MethodGet {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}
	writeJSON(w, traceID, http.StatusOK, map[string]any{
		"status":       "ok",
		"a2a":          true,
		"version":      s.Version,
		"capabilities": []string{"invoke", "multi-turn"},
		"rate_limits": map[string]int{
			"per_minute": s.RateLimits.PerMinute,
			"per_hour":   s.RateLimits.PerHour,
			"per_day":    s.RateLimits.PerDay,
		},
	})
}

// authResult is the outcome of bearer-token authentication, shared by
// /invoke and /end.
type authResult struct {
	tokenID        string
	tokenName      string
	disclosure     string
	notify         bool
	tierTopics     []string
	tierGoals      []string
	callsRemaining int
}

// authenticate extracts and validates the bearer token, collapsing
// every credential failure into a single unauthorized response so a
// caller can never distinguish "revoked" from "unknown" from
// "expired" (spec §4.5 step 2).
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, traceID string) (authResult, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) || strings.TrimSpace(h[len(prefix):]) == "" {
		writeError(w, traceID, http.StatusUnauthorized, ErrMissingToken, "missing bearer token")
		return authResult{}, false
	}
	plaintext := strings.TrimSpace(h[len(prefix):])

	res := s.Credentials.Validate(plaintext)
	if !res.Valid {
		writeError(w, traceID, http.StatusUnauthorized, ErrUnauthorized, "invalid or expired token")
		return authResult{}, false
	}
	return authResult{
		tokenID:        res.ID,
		tokenName:      res.Name,
		disclosure:     string(res.Disclosure),
		notify:         res.Notify,
		tierTopics:     res.AllowedTopics,
		tierGoals:      res.AllowedGoals,
		callsRemaining: res.CallsRemaining,
	}, true
}

// checkRateLimit enforces the per-token window limits, writing a 429
// with Retry-After on rejection.
func (s *Server) checkRateLimit(w http.ResponseWriter, traceID, tokenID string) bool {
	limits := s.RateLimits
	if limits == (ratelimit.Limits{}) {
		limits = ratelimit.DefaultLimits
	}
	res := s.Limiter.Check(tokenID, limits)
	if res.Limited {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterS))
		writeError(w, traceID, http.StatusTooManyRequests, ErrRateLimited, "rate limit exceeded")
		return false
	}
	return true
}

// handleInvoke implements the full call lifecycle: auth, rate limit,
// validate, start-or-resume the conversation, call the reply producer,
// run the collaboration engine, and notify the owner, per spec §4.5.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if r.Method != http.MethodPost {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}

	auth, ok := s.authenticate(w, r, traceID)
	if !ok {
		return
	}
	if !s.checkRateLimit(w, traceID, auth.tokenID) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, traceID, http.StatusBadRequest, ErrInvalidMessage, "malformed request body")
		return
	}

	message := body.Message
	if strings.TrimSpace(message) == "" {
		writeError(w, traceID, http.StatusBadRequest, ErrMissingMessage, "message is required")
		return
	}
	if len(message) > maxMessageLength {
		writeError(w, traceID, http.StatusBadRequest, ErrInvalidMessage, "message exceeds maximum length")
		return
	}

	timeout := coerceTimeout(body.TimeoutSeconds)
	caller := sanitizeCaller(body.Caller)

	conversationID := strings.TrimSpace(body.ConversationID)
	if conversationID == "" {
		conversationID = newConversationRequestID()
	}

	startRes, err := s.Conversations.StartConversation(convstore.StartConversationInput{
		ID:          conversationID,
		ContactName: caller.Name,
		TokenID:     auth.tokenID,
		Direction:   convstore.DirectionInbound,
	})
	if err != nil {
		s.logError(traceID, "start_conversation_failed", err)
		writeError(w, traceID, http.StatusInternalServerError, ErrInternal, "failed to start conversation")
		return
	}
	conversationID = startRes.ID

	if _, err := s.Credentials.EnsureInboundContact(caller.Name, auth.tokenID); err != nil {
		s.logError(traceID, "ensure_inbound_contact_failed", err)
	}

	if _, err := s.Conversations.AddMessage(conversationID, convstore.NewMessageInput{
		Direction: convstore.DirectionInbound,
		Role:      "user",
		Content:   message,
	}); err != nil {
		s.logError(traceID, "add_inbound_message_failed", err)
		writeError(w, traceID, http.StatusInternalServerError, ErrInternal, "failed to record message")
		return
	}

	if s.Watchdog != nil {
		s.Watchdog.Touch(conversationID, caller.Name)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	replyText, err := s.ReplyProducer.Produce(ctx, ReplyRequest{
		ConversationID: conversationID,
		Message:        message,
		Caller:         caller,
		Context:        body.Context,
		Timeout:        timeout,
	})
	if err != nil {
		s.logError(traceID, "reply_producer_failed", err)
		writeError(w, traceID, http.StatusInternalServerError, ErrInternal, "reply producer failed")
		return
	}

	cleaned, state, err := s.Collab.ApplyTurn(collab.TurnInput{
		ConversationID:    conversationID,
		InboundMessage:    message,
		ReplyProducerText: replyText,
		TierTopics:        auth.tierTopics,
		TierGoals:         auth.tierGoals,
	})
	if err != nil {
		s.logError(traceID, "collab_apply_turn_failed", err)
	}

	if _, err := s.Conversations.AddMessage(conversationID, convstore.NewMessageInput{
		Direction: convstore.DirectionOutbound,
		Role:      "assistant",
		Content:   cleaned,
	}); err != nil {
		s.logError(traceID, "add_outbound_message_failed", err)
	}

	if s.Notifier != nil && auth.notify {
		s.Notifier.Dispatch(notify.Event{
			Reason:         "invoke",
			ConversationID: conversationID,
			ContactName:    caller.Name,
		})
	}

	writeJSON(w, traceID, http.StatusOK, map[string]any{
		"success":         true,
		"conversation_id": conversationID,
		"response":        cleaned,
		"can_continue":    !state.CloseSignal,
		"tokens_remaining": auth.callsRemaining,
	})
}

// handleEnd implements POST /end: concludes a conversation, running
// the summarizer if one is configured, and is idempotent on a
// conversation that is already concluded.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if r.Method != http.MethodPost {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}

	auth, ok := s.authenticate(w, r, traceID)
	if !ok {
		return
	}
	_ = auth

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body endRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, traceID, http.StatusBadRequest, ErrInvalidMessage, "malformed request body")
		return
	}
	conversationID := strings.TrimSpace(body.ConversationID)
	if conversationID == "" {
		writeError(w, traceID, http.StatusBadRequest, ErrMissingConversationID, "conversation_id is required")
		return
	}

	conv, err := s.Conversations.ConcludeConversation(conversationID, convstore.ConcludeOptions{
		Summarizer:   s.Summarizer,
		OwnerContext: s.OwnerContext,
	})
	if err != nil {
		writeError(w, traceID, http.StatusInternalServerError, ErrInternal, "failed to conclude conversation")
		return
	}
	if s.Watchdog != nil {
		s.Watchdog.Forget(conversationID)
	}
	if s.Notifier != nil {
		s.Notifier.Dispatch(notify.Event{Reason: "end", ConversationID: conversationID, Summary: conv.Summary})
	}

	writeJSON(w, traceID, http.StatusOK, map[string]any{
		"success":         true,
		"conversation_id": conversationID,
		"status":          string(conv.Status),
		"summary":         conv.Summary,
	})
}

// handleListConversations is an admin-only dashboard endpoint.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if s.rejectIfNotAdmin(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}
	convs, err := s.Conversations.ListConversations(convstore.ListConversationsOptions{
		Status: convstore.Status(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, traceID, http.StatusInternalServerError, ErrInternal, "failed to list conversations")
		return
	}
	writeJSON(w, traceID, http.StatusOK, map[string]any{"success": true, "conversations": convs})
}

// handleGetConversation is an admin-only dashboard endpoint for a
// single conversation's detail and recent messages.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFromRequest(r)
	if s.rejectIfNotAdmin(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, traceID, http.StatusMethodNotAllowed, ErrInvalidMessage, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/a2a/conversations/")
	if id == "" {
		writeError(w, traceID, http.StatusBadRequest, ErrMissingConversationID, "conversation id is required")
		return
	}
	conv, msgs, err := s.Conversations.GetConversation(id, convstore.GetConversationOptions{IncludeMessages: true, MessageLimit: 50})
	if err != nil {
		writeError(w, traceID, http.StatusNotFound, ErrInternal, "conversation not found")
		return
	}
	writeJSON(w, traceID, http.StatusOK, map[string]any{"success": true, "conversation": conv, "messages": msgs})
}

func (s *Server) logError(traceID, event string, err error) {
	if s.Log == nil {
		return
	}
	s.Log.Child(traceID, "", "").Error(event, err.Error(), "internal_error", "")
}

// coerceTimeout decodes timeout_seconds from any reasonable JSON shape
// (integer, float, or numeric string) and clamps it into bounds,
// defaulting when absent or unparsable.
func coerceTimeout(raw json.RawMessage) time.Duration {
	const defaultSeconds = 30
	seconds := defaultSeconds
	if len(raw) > 0 {
		var asNumber float64
		if err := json.Unmarshal(raw, &asNumber); err == nil {
			seconds = int(asNumber)
		} else {
			var asString string
			if err := json.Unmarshal(raw, &asString); err == nil {
				if n, err := strconv.Atoi(strings.TrimSpace(asString)); err == nil {
					seconds = n
				}
			}
		}
	}
	if seconds < minTimeoutSeconds {
		seconds = minTimeoutSeconds
	}
	if seconds > maxTimeoutSeconds {
		seconds = maxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// sanitizeCaller whitelists and truncates caller fields; every other
// key in the inbound object is already dropped by rawCallerInfo's
// fixed shape.
func sanitizeCaller(raw *rawCallerInfo) CallerInfo {
	if raw == nil {
		return CallerInfo{}
	}
	return CallerInfo{
		Name:     truncate(raw.Name, maxCallerName),
		Owner:    truncate(raw.Owner, maxCallerOwner),
		Instance: truncate(raw.Instance, maxCallerInstance),
		Context:  truncate(raw.Context, maxCallerContext),
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func newConversationRequestID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("conv_%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("conv_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
