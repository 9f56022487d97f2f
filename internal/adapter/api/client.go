// Package api is the HTTP adapter for the Helm backend. It implements the
// domain collaborator contracts over the backend's JSON + SSE endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"helm-assistant/internal/domain"
	"helm-assistant/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from the backend.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

const defaultRequestsPerSecond = 10

// Options configures a Client.
type Options struct {
	// BaseURL is the backend API root including the /api prefix.
	BaseURL string
	// Token is sent as a bearer token on every request.
	Token string
	// Timeout bounds non-streaming requests. Streaming requests are
	// unbounded; transport failure is what ends them.
	Timeout time.Duration
	// RequestsPerSecond rate-limits outbound requests.
	RequestsPerSecond float64
}

// Client talks to the Helm backend. It implements domain.ConversationService,
// domain.ReplyStreamer, and domain.EntityLister.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		logger:  logger,
	}
}

// GetConversation implements domain.ConversationService.
func (c *Client) GetConversation(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/chat/conversations/"+id, nil)
	if err != nil {
		return nil, err
	}
	var wire conversationWithMessagesWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	snap := &domain.ConversationSnapshot{
		Conversation: wire.conversationWire.toDomain(),
		Messages:     make([]domain.Message, 0, len(wire.Messages)),
	}
	for _, m := range wire.Messages {
		snap.Messages = append(snap.Messages, m.toDomain(wire.ID))
	}
	return snap, nil
}

// ListConversations implements domain.ConversationService.
func (c *Client) ListConversations(ctx context.Context, skip, limit int) (*domain.ConversationPage, error) {
	path := "/chat/conversations?skip=" + strconv.Itoa(skip) + "&limit=" + strconv.Itoa(limit)
	body, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var wire conversationListWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode conversation list: %w", err)
	}
	page := &domain.ConversationPage{Total: wire.Total}
	for _, w := range wire.Conversations {
		page.Conversations = append(page.Conversations, w.toDomain())
	}
	return page, nil
}

// CreateConversation implements domain.ConversationService. A blank title is
// omitted from the payload so the server applies its default.
func (c *Client) CreateConversation(ctx context.Context, title string, sel domain.ContextSelection) (*domain.Conversation, error) {
	req := createConversationWire{
		Title:                title,
		ContextClassIDs:      emptyIfNil(sel.ClassIDs),
		ContextAssignmentIDs: emptyIfNil(sel.AssignmentIDs),
		ContextPDFIDs:        emptyIfNil(sel.PDFIDs),
		ContextNoteIDs:       emptyIfNil(sel.NoteIDs),
	}
	body, err := c.doJSON(ctx, http.MethodPost, "/chat/conversations", req)
	if err != nil {
		return nil, err
	}
	var wire conversationWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	conv := wire.toDomain()
	return &conv, nil
}

// DeleteConversation implements domain.ConversationService.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/chat/conversations/"+id, nil)
	return err
}

// UpdateContext implements domain.ConversationService. The request carries
// whole-set replacements for only the kinds present in the patch; absent
// kinds are left untouched server-side.
func (c *Client) UpdateContext(ctx context.Context, id string, patch domain.ContextPatch) (*domain.Conversation, error) {
	req := updateContextWire{
		ContextClassIDs:      patch.ClassIDs,
		ContextAssignmentIDs: patch.AssignmentIDs,
		ContextPDFIDs:        patch.PDFIDs,
		ContextNoteIDs:       patch.NoteIDs,
	}
	body, err := c.doJSON(ctx, http.MethodPatch, "/chat/conversations/"+id, req)
	if err != nil {
		return nil, err
	}
	var wire conversationWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	conv := wire.toDomain()
	return &conv, nil
}

// StreamReply implements domain.ReplyStreamer. The server persists the user
// message, streams the assistant reply as named SSE events, and persists the
// full reply on completion.
func (c *Client) StreamReply(ctx context.Context, conversationID, text string) (<-chan domain.StreamChunk, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(streamMessageWire{Message: text})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	url := c.baseURL + "/chat/conversations/" + conversationID + "/messages/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.setAuthHeaders(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	c.logger.Debug("reply stream opened", "conversation", conversationID)
	return parseEventStream(ctx, resp.Body), nil
}

// ListEntities implements domain.EntityLister.
func (c *Client) ListEntities(ctx context.Context, kind domain.EntityKind) ([]domain.Entity, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, domain.NewDomainError("api.ListEntities", domain.ErrInvalidInput, string(kind))
	}
	body, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var wires []entityWire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	entities := make([]domain.Entity, 0, len(wires))
	for _, w := range wires {
		entities = append(entities, w.toDomain(kind))
	}
	return entities, nil
}

// doJSON performs one JSON request against the backend and returns the
// response body. Any 2xx status is a success; everything else maps to a
// domain error.
func (c *Client) doJSON(ctx context.Context, method, path string, in any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, span := tracer.StartSpan(ctx, "api.request",
		trace.WithAttributes(
			tracer.StringAttr("http.method", method),
			tracer.StringAttr("http.path", path),
		),
	)
	defer span.End()

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(tracer.IntAttr("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		err := mapHTTPError(resp.StatusCode, body)
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return body, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// mapHTTPError converts a backend error response to a domain error so
// callers dispatch with errors.Is instead of status codes.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrConversationNotFound, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrServerFailure, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
