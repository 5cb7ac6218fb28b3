package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"ispeak/internal/logging"
	"ispeak/internal/services"
)

const maxEventSize = 8 << 20

// HTTPDoer describes the HTTP client used to open status streams.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Handlers receive events on the connection's goroutine. When both are nil
// events are delivered through Connection.Events instead.
type Handlers struct {
	OnMessage func(StatusMessage)
	OnError   func(error)
}

func (h Handlers) empty() bool {
	return h.OnMessage == nil && h.OnError == nil
}

// Event is either a validated message or the error that closed the stream.
type Event struct {
	Message *StatusMessage
	Err     error
}

// Client opens status streams against the analysis service.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewClient builds a client for baseURL. A nil doer uses a dedicated
// http.Client without a timeout, since streams stay open for the whole job.
func NewClient(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    doer,
		logger:  logging.NewComponentLogger(logger, "stream"),
		conns:   make(map[string]*Connection),
	}
}

// Connect opens the status stream for jobID. Any open connection for the same
// job is closed first. Failure to establish the stream returns a connection
// error and leaves no connection open.
func (c *Client) Connect(ctx context.Context, jobID string, handlers Handlers) (*Connection, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, services.Validation("job id is required", map[string]string{"job_id": "Required"})
	}

	c.mu.Lock()
	previous := c.conns[jobID]
	c.mu.Unlock()
	if previous != nil {
		c.logger.Debug("closing previous stream", logging.String(logging.FieldJobID, jobID))
		previous.Close()
	}

	connCtx, cancel := context.WithCancel(ctx)
	endpoint := fmt.Sprintf("%s/status/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, services.New(services.CodeConnection, "build status stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, services.New(services.CodeConnection, "Connection to server lost", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		cancel()
		return nil, services.New(services.CodeConnection, "Connection to server lost",
			fmt.Errorf("status stream returned %d", resp.StatusCode))
	}

	conn := &Connection{
		jobID:    jobID,
		client:   c,
		cancel:   cancel,
		body:     resp.Body,
		handlers: handlers,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	stale := c.conns[jobID]
	c.conns[jobID] = conn
	c.mu.Unlock()
	if stale != nil {
		stale.Close()
	}

	c.logger.Debug("status stream opened", logging.String(logging.FieldJobID, jobID))
	go conn.run(connCtx)
	return conn, nil
}

// OpenCount returns the number of live connections.
func (c *Client) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// CloseAll closes every live connection.
func (c *Client) CloseAll() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (c *Client) release(conn *Connection) {
	c.mu.Lock()
	if c.conns[conn.jobID] == conn {
		delete(c.conns, conn.jobID)
	}
	c.mu.Unlock()
}

// Connection is one open status stream.
type Connection struct {
	jobID    string
	client   *Client
	cancel   context.CancelFunc
	body     io.ReadCloser
	handlers Handlers
	events   chan Event
	done     chan struct{}

	closeOnce sync.Once
}

// JobID returns the job this connection follows.
func (c *Connection) JobID() string {
	return c.jobID
}

// Events returns the receive channel used when Connect was called without
// handlers. It is closed when the stream ends.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Done is closed once the receive loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops the stream. It is safe to call more than once and from
// handlers.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.client.release(c)
		c.cancel()
	})
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)
	defer c.body.Close()
	defer c.Close()

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []string
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line != "" {
			if field, value, ok := parseField(line); ok && field == "data" {
				data = append(data, value)
			}
			continue
		}
		if len(data) == 0 {
			continue
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		msg, err := ParseMessage([]byte(payload))
		if err != nil {
			c.client.logger.Warn("status message rejected",
				logging.String(logging.FieldJobID, c.jobID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "stream_validation_failed"),
			)
			c.deliver(ctx, Event{Err: err})
			return
		}
		c.client.logger.Debug("status message",
			logging.String(logging.FieldJobID, c.jobID),
			logging.String("status", string(msg.Status)),
		)
		c.deliver(ctx, Event{Message: &msg})
		if msg.Terminal() {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	cause := scanner.Err()
	if cause == nil {
		cause = io.ErrUnexpectedEOF
	}
	if errors.Is(cause, context.Canceled) {
		return
	}
	c.deliver(ctx, Event{Err: services.New(services.CodeConnection, "Connection to server lost", cause)})
}

func (c *Connection) deliver(ctx context.Context, ev Event) {
	if !c.handlers.empty() {
		if ev.Err != nil {
			if c.handlers.OnError != nil {
				c.handlers.OnError(ev.Err)
			}
			return
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(*ev.Message)
		}
		return
	}
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// parseField splits an SSE line into field and value. Comment lines report
// ok=false.
func parseField(line string) (field, value string, ok bool) {
	if strings.HasPrefix(line, ":") {
		return "", "", false
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, "", true
	}
	return field, strings.TrimPrefix(value, " "), true
}
