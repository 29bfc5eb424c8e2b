package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDaemonNotRunning is returned when nothing listens on the socket.
	ErrDaemonNotRunning = errors.New("controller daemon not running")

	// ErrPermissionDenied is returned when the socket cannot be opened by this user.
	ErrPermissionDenied = errors.New("permission denied")
)

// StatusError is returned when the controller answers with a non-2xx code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got %d: %s", e.StatusCode, e.Body)
}

// Client is a struct for communicating with the controller daemon over its
// unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
	wsDialer   *websocket.Dialer
}

// NewClient is a constructor for creating a new Client
func NewClient(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", socketPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
				return nil, ErrDaemonNotRunning
			}
			if errors.Is(err, os.ErrPermission) {
				return nil, ErrPermissionDenied
			}
			logrus.Errorf("failed to connect to unix socket: %v", err)
			return nil, err
		}
		return conn, nil
	}

	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: dial,
			},
		},
		wsDialer: &websocket.Dialer{
			NetDialContext: dial,
		},
	}
}

// Send is a method for sending a request to the controller daemon
func (c *Client) Send(ctx context.Context, method string, path string, data []byte) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   string(data),
		"unix":   c.socketPath,
	}).Debug("sending request")

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	return string(b), nil
}

// Get is a method for sending a GET request to the controller daemon
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

// Post is a method for sending a POST request to the controller daemon
func (c *Client) Post(ctx context.Context, path string, data []byte) (string, error) {
	return c.Send(ctx, http.MethodPost, path, data)
}

// Dial opens a websocket stream on path.
func (c *Client) Dial(ctx context.Context, path string) (*websocket.Conn, error) {
	logrus.WithFields(logrus.Fields{
		"path": path,
		"unix": c.socketPath,
	}).Debug("opening event stream")

	conn, resp, err := c.wsDialer.DialContext(ctx, "ws://unix"+path, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Status}
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	return conn, nil
}
