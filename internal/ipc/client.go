package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// callTimeout bounds every control call.
const callTimeout = 5 * time.Second

// Client talks to a running daemon.
type Client struct {
	conn *grpc.ClientConn
	path string
}

// Dial connects to the daemon listening on path. It fails with
// ErrNotRunning when nothing accepts on the socket. maxPayload sizes the
// largest message the client accepts, see MessageLimit.
func Dial(path string, maxPayload int64) (*Client, error) {
	if !IsRunning(path) {
		return nil, fmt.Errorf("%w (socket %s)", ErrNotRunning, path)
	}
	conn, err := grpc.NewClient(
		"unix://"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(MessageLimit(maxPayload)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn, path: path}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Toggle asks the daemon to show the picker.
func (c *Client) Toggle(ctx context.Context, pid int) (*ToggleResponse, error) {
	out := new(ToggleResponse)
	if err := c.invoke(ctx, "Toggle", &ToggleRequest{PID: pid}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the daemon's history, oldest first.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, listDesc, fullMethod("List"))
	if err != nil {
		return nil, c.callError("List", err)
	}
	if err := stream.SendMsg(&ListRequest{}); err != nil {
		return nil, c.callError("List", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, c.callError("List", err)
	}

	out := new(ListResponse)
	for {
		msg := new(listItem)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, c.callError("List", err)
		}
		out.Items = append(out.Items, msg.Item)
	}
}

// Clear empties the daemon's history.
func (c *Client) Clear(ctx context.Context) error {
	return c.invoke(ctx, "Clear", &ClearRequest{}, new(ClearResponse))
}

// Status describes the running daemon.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, "Status", &StatusRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return c.callError(method, err)
	}
	return nil
}

func (c *Client) callError(method string, err error) error {
	if status.Code(err) == codes.Unavailable {
		return fmt.Errorf("%w (socket %s): %v", ErrNotRunning, c.path, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}
