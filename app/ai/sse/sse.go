// Minimal server-sent-events client for the completion API stream.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Event is a single SSE frame.
type Event struct {
	ID    []byte
	Event []byte
	Data  []byte
}

// StatusError is returned when the upstream rejects the subscription outright.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sse: subscription rejected: %s", e.Status)
}

type Client struct {
	request *http.Request

	// HTTPClient carries the caller's transport and timeout; defaults to a
	// plain client.
	HTTPClient *http.Client

	// buffer growth cap for a single event line
	maxBufferSize int
}

// NewClientFromReq creates a client streaming events from a prepared request.
func NewClientFromReq(req *http.Request) *Client {
	return &Client{
		request:       req,
		HTTPClient:    &http.Client{},
		maxBufferSize: 1 << 20,
	}
}

// SubscribeWithContext performs the request and invokes handler for every
// event until the stream ends, the context is canceled, or an error occurs.
// The stream is not restartable; callers treat a failed subscription as a
// failed turn.
func (c *Client) SubscribeWithContext(ctx context.Context, stream string, handler func(msg *Event)) error {
	req := c.request.WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 4096), c.maxBufferSize)

	event := &Event{}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()

		// blank line terminates an event
		if len(bytes.TrimSpace(line)) == 0 {
			if len(event.Data) > 0 {
				handler(event)
			}
			event = &Event{}
			continue
		}

		field, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "id":
			event.ID = append([]byte(nil), value...)
		case "event":
			event.Event = append([]byte(nil), value...)
		case "data":
			if len(event.Data) > 0 {
				event.Data = append(event.Data, '\n')
			}
			event.Data = append(event.Data, value...)
		}
	}
	if len(event.Data) > 0 {
		handler(event)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sse: stream broken: %w", err)
	}
	return nil
}
