package esdb

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// newFrameScanner wraps resp.Body in a line-oriented scanner that splits
// on '\n'; each line is one JSON envelope. The Content-Type charset is not
// consulted: the body is always read as UTF-8.
func newFrameScanner(resp *http.Response) *bufio.Scanner {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return scanner
}

// stream drives a single read/observe HTTP exchange: POST the subject and
// options, then decode the NDJSON body frame by frame, forwarding only
// Event frames to consumer in stream order. It blocks until the server
// closes the stream, consumer returns an error, or ctx is cancelled.
func (c *httpClient) stream(ctx context.Context, path, subject string, options []Option, observe bool, consumer func(Event) error) error {
	body := struct {
		Subject string   `json:"subject"`
		Options []Option `json:"options"`
	}{subject, options}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := classifyStatus(path, resp); err != nil {
		return err
	}

	scanner := newFrameScanner(resp)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return &InterruptedError{ClientError{Op: path, Err: ctx.Err()}}
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame wireFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return &MarshallingError{ClientError{Op: path, Err: err}}
		}
		if frame.Type != "event" {
			// Informational frame (heartbeat, stream-end marker, etc.):
			// not passed to the consumer.
			continue
		}
		var event Event
		if err := json.Unmarshal(frame.Payload, &event); err != nil {
			return &MarshallingError{ClientError{Op: path, Err: err}}
		}
		if err := consumer(event); err != nil {
			return wrapConsumerError(path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return &InterruptedError{ClientError{Op: path, Err: ctx.Err()}}
		}
		return &TransportError{ClientError{Op: path, Err: fmt.Errorf("stream read failed: %w", err)}}
	}
	return nil
}
