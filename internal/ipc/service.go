package ipc

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"time"

	"google.golang.org/grpc"

	"go.klb.dev/wayclip/internal/history"
)

const (
	serviceName = "wayclip.v1.Control"
	// handshakeTimeout bounds a client's connection setup.
	handshakeTimeout = 5 * time.Second
	// itemOverhead covers an item's id, mime type and framing.
	itemOverhead = 64 << 10
)

// MessageLimit is the largest control message for histories whose items
// hold at most maxPayload bytes. A maxPayload of 0 is unbounded.
func MessageLimit(maxPayload int64) int {
	if maxPayload <= 0 || maxPayload > math.MaxInt32-itemOverhead {
		return math.MaxInt32
	}
	return int(maxPayload) + itemOverhead
}

// ToggleRequest asks the daemon to show the picker. PID identifies the
// triggering process for logging only.
type ToggleRequest struct {
	PID int
}

// ToggleResponse reports whether a picker was started. A toggle is refused
// while a picker is already open.
type ToggleResponse struct {
	Accepted bool
	Reason   string
}

type ListRequest struct{}

// ListResponse carries the history, oldest first. It is streamed one item
// per message.
type ListResponse struct {
	Items []history.Item
}

type ClearRequest struct{}

type ClearResponse struct{}

type StatusRequest struct{}

// StatusResponse describes the running daemon. The json tags serve
// "wayclip status --json".
type StatusResponse struct {
	PID        int       `json:"pid"`
	Version    string    `json:"version"`
	Items      int       `json:"items"`
	StartedAt  time.Time `json:"started_at"`
	Manager    string    `json:"manager,omitempty"`
	PickerOpen bool      `json:"picker_open"`
}

// Handler implements the control service. The daemon provides it.
type Handler interface {
	Toggle(ctx context.Context, req *ToggleRequest) (*ToggleResponse, error)
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
	Clear(ctx context.Context, req *ClearRequest) (*ClearResponse, error)
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unary("Toggle", Handler.Toggle),
		unary("Clear", Handler.Clear),
		unary("Status", Handler.Status),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "List", Handler: listStream, ServerStreams: true},
	},
	Metadata: "wayclip/v1/control.proto",
}

var listDesc = &serviceDesc.Streams[0]

func fullMethod(method string) string { return "/" + serviceName + "/" + method }

// unary builds the method descriptor for one Handler method, in the shape
// protoc-gen-go-grpc generates.
func unary[Req, Resp any](method string, call func(Handler, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Handler), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(Handler), ctx, req.(*Req))
			})
		},
	}
}

// listStream sends the history one item per message, so a message never
// grows past a single item.
func listStream(srv any, stream grpc.ServerStream) error {
	in := new(ListRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	resp, err := srv.(Handler).List(stream.Context(), in)
	if err != nil {
		return err
	}
	for _, it := range resp.Items {
		if err := stream.SendMsg(&listItem{Item: it}); err != nil {
			return err
		}
	}
	return nil
}

// Serve runs the control service on ln until ctx is done. In-flight calls
// finish before it returns. maxPayload bounds the items the history holds,
// see MessageLimit.
func Serve(ctx context.Context, ln net.Listener, h Handler, maxPayload int64) error {
	s := grpc.NewServer(
		grpc.ConnectionTimeout(handshakeTimeout),
		grpc.MaxSendMsgSize(MessageLimit(maxPayload)),
		grpc.ChainUnaryInterceptor(logCalls),
		grpc.ChainStreamInterceptor(logStreams),
	)
	s.RegisterService(&serviceDesc, h)

	stop := context.AfterFunc(ctx, s.GracefulStop)
	defer stop()

	slog.Info("control socket listening", "path", ln.Addr().String())
	if err := s.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	if err != nil {
		slog.Warn("control call failed", "method", info.FullMethod, "err", err)
	} else {
		slog.Debug("control call", "method", info.FullMethod, "took", time.Since(start))
	}
	return resp, err
}

func logStreams(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
	start := time.Now()
	err := next(srv, ss)
	if err != nil {
		slog.Warn("control call failed", "method", info.FullMethod, "err", err)
	} else {
		slog.Debug("control call", "method", info.FullMethod, "took", time.Since(start))
	}
	return err
}
