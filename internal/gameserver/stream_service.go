package gameserver

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/daguai/internal/protocol"
)

// Names of the streaming service. Each message on the stream is a
// google.protobuf.Struct carrying one envelope.
const (
	StreamServiceName = "daguai.v1.GameStream"
	SessionStreamName = "Session"
	SessionFullMethod = "/" + StreamServiceName + "/" + SessionStreamName
)

// drainTimeout bounds how long a finished stream waits for queued messages.
const drainTimeout = 5 * time.Second

// GameStreamServer is the server API for the streaming service.
type GameStreamServer interface {
	Session(grpc.ServerStream) error
}

// StreamServiceDesc describes the bidirectional session stream.
var StreamServiceDesc = grpc.ServiceDesc{
	ServiceName: StreamServiceName,
	HandlerType: (*GameStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    SessionStreamName,
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// SessionStreamDesc is the client-side descriptor for SessionFullMethod.
var SessionStreamDesc = &StreamServiceDesc.Streams[0]

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(GameStreamServer).Session(stream)
}

// StreamService carries the persistent-connection protocol over gRPC.
type StreamService struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewStreamService creates a StreamService.
//
// Precondition: dispatcher and logger must be non-nil.
func NewStreamService(dispatcher *Dispatcher, logger *zap.Logger) *StreamService {
	return &StreamService{dispatcher: dispatcher, logger: logger}
}

// Register adds the service to s.
func (svc *StreamService) Register(s *grpc.Server) {
	s.RegisterService(&StreamServiceDesc, svc)
}

// Session runs one client connection until the client closes the stream or
// the server drops the connection.
func (svc *StreamService) Session(stream grpc.ServerStream) error {
	ctx := stream.Context()
	peer := svc.dispatcher.Connect(&streamTransport{stream: stream})
	conn := peer.Conn()
	defer func() {
		svc.dispatcher.Disconnect(peer)
		select {
		case <-conn.Done():
		case <-time.After(drainTimeout):
			svc.logger.Warn("stream writer did not drain", zap.String("conn", conn.ID().String()))
		}
	}()

	frames := make(chan []byte)
	recvErr := make(chan error, 1)
	go svc.recvLoop(ctx, stream, frames, recvErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return status.Error(codes.Unavailable, "connection closed by server")
		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case data := <-frames:
			svc.dispatcher.Dispatch(ctx, peer, data)
		}
	}
}

func (svc *StreamService) recvLoop(ctx context.Context, stream grpc.ServerStream, frames chan<- []byte, errs chan<- error) {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			errs <- err
			return
		}
		data, err := protojson.Marshal(msg)
		if err != nil {
			svc.logger.Warn("converting stream frame", zap.Error(err))
			continue
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// streamTransport adapts a server stream to session.Transport. The stream
// has no control frames, so liveness pings are application-level messages.
type streamTransport struct {
	mu     sync.Mutex
	stream grpc.ServerStream
	closed bool
}

func (t *streamTransport) WriteMessage(data []byte) error {
	msg := new(structpb.Struct)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	return t.stream.SendMsg(msg)
}

func (t *streamTransport) Ping() error {
	data, err := protocol.Encode(protocol.Ping())
	if err != nil {
		return err
	}
	return t.WriteMessage(data)
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
