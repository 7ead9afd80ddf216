package esdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

// Client is the ESDB wire contract consumed by the rest of this module:
// ping, authenticate, health, write, read, observe, query. All operations
// are synchronous and block the caller for the duration of the underlying
// HTTP exchange; ctx cancellation must surface as InterruptedError and
// terminate the exchange promptly.
type Client interface {
	// Ping succeeds iff the server's response type tag is "ping-received".
	Ping(ctx context.Context) error

	// Authenticate succeeds iff the response tag is "api-token-verified".
	// A 401 response is reported as an auth failure (HTTPClientError).
	Authenticate(ctx context.Context) error

	// Health fetches the store's health snapshot.
	Health(ctx context.Context) (Health, error)

	// Write atomically appends candidates subject to preconditions and
	// returns the stored events with all CloudEvents fields populated.
	// A 409 response surfaces as ConflictError.
	Write(ctx context.Context, candidates []EventCandidate, preconditions []Precondition) ([]Event, error)

	// Read streams the (finite) history for subject through consumer,
	// synchronously, in stream order, blocking until the server closes
	// the stream.
	Read(ctx context.Context, subject string, options []Option, consumer func(Event) error) error

	// Observe streams subject indefinitely. A normal return from the
	// server (stream closed without the caller cancelling ctx) is
	// re-raised as a TransportError: observe never terminates normally
	// under success.
	Observe(ctx context.Context, subject string, options []Option, consumer func(Event) error) error

	// Query runs an EventQL query, dispatching each result row to
	// rowHandler and each per-row parse error to errorHandler
	// independently of other rows.
	Query(ctx context.Context, queryText string, rowHandler func(json.RawMessage) error, errorHandler func(error)) error
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURI string
	Token   string

	// HTTP is the underlying *http.Client. Defaults to a client with no
	// overall timeout (streaming observe calls are long-lived by design;
	// use ctx for deadlines).
	HTTP *http.Client

	// Logger defaults to log.Default(). It is stored on the client; none
	// of the client's operations write to it.
	Logger *log.Logger
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.HTTP == nil {
		c.HTTP = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

type httpClient struct {
	cfg ClientConfig
}

// NewClient builds an ESDB client over HTTP/JSON against baseURI,
// authenticating every request with a bearer token.
func NewClient(baseURI, token string) Client {
	return NewClientWithConfig(ClientConfig{BaseURI: baseURI, Token: token})
}

// NewClientWithConfig builds an ESDB client with explicit configuration.
func NewClientWithConfig(cfg ClientConfig) Client {
	return &httpClient{cfg: cfg.withDefaults()}
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *httpClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &MarshallingError{ClientError{Op: path, Err: err}}
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURI+path, reader)
	if err != nil {
		return nil, &TransportError{ClientError{Op: path, Err: err}}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *httpClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.cfg.HTTP.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, &InterruptedError{ClientError{Op: req.URL.Path, Err: req.Context().Err()}}
		}
		return nil, &TransportError{ClientError{Op: req.URL.Path, Err: err}}
	}
	return resp, nil
}

// classifyStatus implements the status-code mapping. A nil return means
// the caller should proceed to read resp.Body.
func classifyStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{ClientError: ClientError{Op: op, Err: fmt.Errorf("precondition violated")}, Body: string(body)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &HTTPClientError{ClientError: ClientError{Op: op, Err: fmt.Errorf("client error")}, StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return &HTTPServerError{ClientError: ClientError{Op: op, Err: fmt.Errorf("server error")}, StatusCode: resp.StatusCode, Body: string(body)}
	default:
		return &HTTPUnexpectedStatusError{ClientError: ClientError{Op: op, Err: fmt.Errorf("unexpected status")}, StatusCode: resp.StatusCode, Body: string(body)}
	}
}

func (c *httpClient) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := classifyStatus("ping", resp); err != nil {
		return err
	}
	var frame wireFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return &MarshallingError{ClientError{Op: "ping", Err: err}}
	}
	if frame.Type != "ping-received" {
		return &TransportError{ClientError{Op: "ping", Err: fmt.Errorf("unexpected response type %q", frame.Type)}}
	}
	return nil
}

func (c *httpClient) Authenticate(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/verify-api-token", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		return &HTTPClientError{ClientError: ClientError{Op: "authenticate", Err: fmt.Errorf("authentication failed")}, StatusCode: http.StatusUnauthorized, Body: string(body)}
	}
	if err := classifyStatus("authenticate", resp); err != nil {
		return err
	}
	var frame wireFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return &MarshallingError{ClientError{Op: "authenticate", Err: err}}
	}
	if frame.Type != "api-token-verified" {
		return &TransportError{ClientError{Op: "authenticate", Err: fmt.Errorf("unexpected response type %q", frame.Type)}}
	}
	return nil
}

func (c *httpClient) Health(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()
	if err := classifyStatus("health", resp); err != nil {
		return Health{}, err
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, &MarshallingError{ClientError{Op: "health", Err: err}}
	}
	return h, nil
}

func (c *httpClient) Write(ctx context.Context, candidates []EventCandidate, preconditions []Precondition) ([]Event, error) {
	body := struct {
		Events        []EventCandidate `json:"events"`
		Preconditions []Precondition   `json:"preconditions"`
	}{candidates, preconditions}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/write-events", body)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus("write", resp); err != nil {
		return nil, err
	}
	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, &MarshallingError{ClientError{Op: "write", Err: err}}
	}
	return events, nil
}

func (c *httpClient) Read(ctx context.Context, subject string, options []Option, consumer func(Event) error) error {
	if err := validateOptions("read", options, false); err != nil {
		return err
	}
	return c.stream(ctx, "/api/v1/read-events", subject, options, false, consumer)
}

func (c *httpClient) Observe(ctx context.Context, subject string, options []Option, consumer func(Event) error) error {
	if err := validateOptions("observe", options, true); err != nil {
		return err
	}
	err := c.stream(ctx, "/api/v1/observe-events", subject, options, true, consumer)
	if err == nil {
		// A normal return from an observe stream is always abnormal.
		return &TransportError{ClientError{Op: "observe", Err: fmt.Errorf("observe stream terminated normally")}}
	}
	return err
}

func (c *httpClient) Query(ctx context.Context, queryText string, rowHandler func(json.RawMessage) error, errorHandler func(error)) error {
	body := struct {
		Query string `json:"query"`
	}{queryText}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/run-eventql-query", body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := classifyStatus("query", resp); err != nil {
		return err
	}

	scanner := newFrameScanner(resp)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return &InterruptedError{ClientError{Op: "query", Err: ctx.Err()}}
		}
		var frame wireFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			errorHandler(&MarshallingError{ClientError{Op: "query", Err: err}})
			continue
		}
		switch frame.Type {
		case "row":
			if err := rowHandler(frame.Payload); err != nil {
				return wrapConsumerError("query", err)
			}
		case "error":
			var msg struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(frame.Payload, &msg)
			errorHandler(fmt.Errorf("%s", msg.Message))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return &InterruptedError{ClientError{Op: "query", Err: ctx.Err()}}
		}
		return &TransportError{ClientError{Op: "query", Err: err}}
	}
	return nil
}
