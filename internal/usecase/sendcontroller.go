package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel/trace"

	"helm-assistant/internal/domain"
	"helm-assistant/internal/infra/tracer"
)

// maxMessageLen caps one submission; the backend rejects longer messages.
const maxMessageLen = 10000

// SendStatus names the send state machine's states.
type SendStatus string

const (
	SendIdle       SendStatus = "idle"
	SendSending    SendStatus = "sending"
	SendStreaming  SendStatus = "streaming"
	SendFinalizing SendStatus = "finalizing"
	SendFailed     SendStatus = "failed"
)

// FSM triggers.
var (
	triggerSend         stateless.Trigger = "Send"
	triggerStreamOpened stateless.Trigger = "StreamOpened"
	triggerStreamEnded  stateless.Trigger = "StreamEnded"
	triggerCommitted    stateless.Trigger = "Committed"
	triggerFailed       stateless.Trigger = "Failed"
	triggerReset        stateless.Trigger = "Reset"
)

// FinalizeHook runs after a send finalizes successfully. The session layer
// uses it to reconcile the transcript against the canonical snapshot and to
// invalidate the conversation list cache.
type FinalizeHook func(ctx context.Context, conversationID string)

// SendController drives exactly one outstanding send per conversation through
// a strict state sequence:
//
//	idle → sending → streaming → finalizing → idle
//
// with the failure path sending|streaming → failed → idle. The idle gate is
// the single-flight guarantee: a send while not idle is rejected outright.
//
// Streamed increments accumulate in a transient buffer that is only committed
// to the transcript once the stream terminates cleanly, so a mid-stream
// failure never leaves a half-written message in the durable log. The
// controller commits completions to the TranscriptStore it was built with,
// never to whichever conversation happens to be active at completion time.
type SendController struct {
	conversationID string
	transcript     *TranscriptStore
	streamer       domain.ReplyStreamer
	bus            domain.EventBus
	logger         *slog.Logger
	onFinalize     FinalizeHook

	mu              sync.Mutex
	fsm             *stateless.StateMachine
	partial         strings.Builder
	lastFailedInput string
	lastErr         error
}

// NewSendController creates a controller bound to one conversation's
// transcript. onFinalize may be nil.
func NewSendController(transcript *TranscriptStore, streamer domain.ReplyStreamer, bus domain.EventBus, logger *slog.Logger, onFinalize FinalizeHook) *SendController {
	c := &SendController{
		conversationID: transcript.ConversationID(),
		transcript:     transcript,
		streamer:       streamer,
		bus:            bus,
		logger:         logger,
		onFinalize:     onFinalize,
	}

	fsm := stateless.NewStateMachine(SendIdle)

	fsm.Configure(SendIdle).
		Permit(triggerSend, SendSending)

	fsm.Configure(SendSending).
		Permit(triggerStreamOpened, SendStreaming).
		Permit(triggerFailed, SendFailed)

	fsm.Configure(SendStreaming).
		Permit(triggerStreamEnded, SendFinalizing).
		Permit(triggerFailed, SendFailed)

	fsm.Configure(SendFinalizing).
		Permit(triggerCommitted, SendIdle)

	fsm.Configure(SendFailed).
		Permit(triggerReset, SendIdle)

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.Debug("send state transition",
			"conversation", c.conversationID,
			"from", t.Source,
			"to", t.Destination,
			"trigger", t.Trigger,
		)
	})

	c.fsm = fsm
	return c
}

// ConversationID returns the conversation this controller sends for.
func (c *SendController) ConversationID() string { return c.conversationID }

// Status returns the current state of the send machine.
func (c *SendController) Status() SendStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState().(SendStatus)
}

// PartialText returns the assistant text streamed so far for the in-flight
// send. Empty when no stream is active.
func (c *SendController) PartialText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partial.String()
}

// LastFailedInput returns the input of the last failed send, if any.
func (c *SendController) LastFailedInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailedInput
}

// LastError returns the error recorded by the last failed send, if any.
func (c *SendController) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Send submits text and blocks until the reply stream finishes or fails.
// Callers run it on their own goroutine; observers follow progress through
// the event bus and PartialText.
//
// Rejected synchronously with domain.ErrInvalidInput for blank or oversized
// input and domain.ErrSendInFlight when the controller is not idle; neither
// rejection mutates the transcript.
func (c *SendController) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.NewDomainError("SendController.Send", domain.ErrInvalidInput, "empty message")
	}
	if len(trimmed) > maxMessageLen {
		return domain.NewDomainError("SendController.Send", domain.ErrInvalidInput, "message too long")
	}

	// Idle gate: the state check and the transition out of idle must be one
	// atomic step, otherwise two racing sends could both pass the check.
	c.mu.Lock()
	if c.fsm.MustState().(SendStatus) != SendIdle {
		c.mu.Unlock()
		return domain.NewDomainError("SendController.Send", domain.ErrSendInFlight, c.conversationID)
	}
	if err := c.fsm.Fire(triggerSend); err != nil {
		c.mu.Unlock()
		return domain.WrapOp("SendController.Send", err)
	}
	c.partial.Reset()
	pending := c.transcript.AppendProvisional(domain.RoleUser, trimmed)
	c.mu.Unlock()

	ctx, span := tracer.StartSpan(ctx, "send.stream",
		trace.WithAttributes(tracer.StringAttr("conversation.id", c.conversationID)),
	)
	defer span.End()

	c.publishState(ctx, SendSending)

	ch, err := c.streamer.StreamReply(ctx, c.conversationID, trimmed)
	if err != nil {
		tracer.RecordError(span, err)
		return c.fail(ctx, trimmed, pending.ID, err)
	}

	c.fire(triggerStreamOpened)
	c.publishState(ctx, SendStreaming)
	c.publish(ctx, domain.EventStreamStarted, nil)

	completed := false
	for chunk := range ch {
		if chunk.Err != nil {
			tracer.RecordError(span, chunk.Err)
			return c.fail(ctx, trimmed, pending.ID, chunk.Err)
		}
		if chunk.Done {
			completed = true
			break
		}
		c.mu.Lock()
		c.partial.WriteString(chunk.Text)
		partial := c.partial.String()
		c.mu.Unlock()

		c.publish(ctx, domain.EventStreamDelta, domain.StreamDeltaPayload{
			Text:    chunk.Text,
			Partial: partial,
		})
	}
	if !completed {
		err := domain.NewDomainError("SendController.Send", domain.ErrStreamAborted, "stream closed before completion")
		tracer.RecordError(span, err)
		return c.fail(ctx, trimmed, pending.ID, err)
	}

	c.fire(triggerStreamEnded)
	c.publishState(ctx, SendFinalizing)

	c.mu.Lock()
	content := c.partial.String()
	c.partial.Reset()
	c.lastFailedInput = ""
	c.lastErr = nil
	c.mu.Unlock()

	c.transcript.AppendProvisional(domain.RoleAssistant, content)
	c.publish(ctx, domain.EventStreamCompleted, domain.StreamCompletedPayload{Content: content})

	c.fire(triggerCommitted)
	c.publishState(ctx, SendIdle)

	c.logger.Info("send completed",
		"conversation", c.conversationID,
		"reply_len", len(content),
	)
	tracer.SetOK(span)

	if c.onFinalize != nil {
		c.onFinalize(ctx, c.conversationID)
	}
	return nil
}

// Retry re-submits the last failed input. Valid only after a failed send.
func (c *SendController) Retry(ctx context.Context) error {
	c.mu.Lock()
	text := c.lastFailedInput
	c.mu.Unlock()

	if text == "" {
		return domain.NewDomainError("SendController.Retry", domain.ErrNoFailedSend, "")
	}
	return c.Send(ctx, text)
}

// DismissError clears the recorded failure without retrying.
func (c *SendController) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFailedInput = ""
	c.lastErr = nil
}

// fail converts any failure after acceptance into the failed → idle path:
// the partial buffer is discarded, the optimistic user message is removed so
// a retry can re-add it, and the failing input is preserved.
func (c *SendController) fail(ctx context.Context, input, pendingID string, cause error) error {
	c.mu.Lock()
	c.partial.Reset()
	c.lastFailedInput = input
	c.lastErr = cause
	c.mu.Unlock()

	c.transcript.RemoveProvisional(func(m domain.Message) bool {
		return m.ID == pendingID
	})

	c.fire(triggerFailed)
	c.publishState(ctx, SendFailed)
	c.publish(ctx, domain.EventStreamError, domain.StreamErrorPayload{
		Error: cause.Error(),
		Code:  domain.ErrorCodeOf(cause),
	})

	c.fire(triggerReset)
	c.publishState(ctx, SendIdle)

	c.logger.Warn("send failed",
		"conversation", c.conversationID,
		"error", cause,
	)
	return domain.NewDomainError("SendController.Send", domain.ErrSendFailed, cause.Error())
}

func (c *SendController) fire(trigger stateless.Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fsm.Fire(trigger); err != nil {
		c.logger.Error("send state misfire",
			"conversation", c.conversationID,
			"trigger", trigger,
			"error", err,
		)
	}
}

func (c *SendController) publishState(ctx context.Context, s SendStatus) {
	c.publish(ctx, domain.EventSendState, domain.SendStatePayload{State: string(s)})
}

func (c *SendController) publish(ctx context.Context, t domain.EventType, payload any) {
	if c.bus == nil {
		return
	}
	evt := domain.Event{
		Type:           t,
		Timestamp:      time.Now(),
		ConversationID: c.conversationID,
	}
	if payload != nil {
		evt.Payload = domain.MarshalPayload(payload)
	}
	c.bus.Publish(ctx, evt)
}
