package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"helm-assistant/internal/domain"
)

// maxSSELine bounds one SSE line; reply chunks are short.
const maxSSELine = 1024 * 1024

// parseEventStream reads the backend's named SSE events from body and
// converts them to StreamChunks:
//
//	event: message  → a text increment
//	event: done     → successful completion, terminal
//	event: error    → failure, terminal
//
// The channel is closed when a terminal event arrives, the body ends, or ctx
// is cancelled. A close with no preceding terminal chunk means the stream
// broke mid-reply; the consumer treats that as a failure.
func parseEventStream(ctx context.Context, body io.ReadCloser) <-chan domain.StreamChunk {
	ch := make(chan domain.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		var (
			event string
			data  []string
		)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 4096), maxSSELine)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			// A blank line terminates one event.
			if line == "" {
				if chunk, terminal := buildChunk(event, data); chunk != nil {
					select {
					case ch <- *chunk:
					case <-ctx.Done():
						return
					}
					if terminal {
						return
					}
				}
				event = ""
				data = nil
				continue
			}

			if strings.HasPrefix(line, ":") {
				continue
			}
			if val, ok := strings.CutPrefix(line, "event:"); ok {
				event = strings.TrimSpace(val)
				continue
			}
			if val, ok := strings.CutPrefix(line, "data:"); ok {
				data = append(data, strings.TrimPrefix(val, " "))
				continue
			}
		}
	}()
	return ch
}

// buildChunk converts one finished SSE event to a chunk. Unknown event names
// are skipped. The second result marks terminal events.
func buildChunk(event string, data []string) (*domain.StreamChunk, bool) {
	switch event {
	case "message", "":
		if len(data) == 0 {
			return nil, false
		}
		return &domain.StreamChunk{Text: strings.Join(data, "\n")}, false
	case "done":
		return &domain.StreamChunk{Done: true}, true
	case "error":
		detail := strings.Join(data, "\n")
		if detail == "" {
			detail = "unspecified stream error"
		}
		return &domain.StreamChunk{Err: fmt.Errorf("%w: %s", domain.ErrServerFailure, detail)}, true
	default:
		return nil, false
	}
}
