package stream

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// subscribeMethod is the full gRPC method name for the Yellowstone/Geyser
// bidirectional SubscribeUpdate stream. No generated .proto client ships
// in this module (none of the example repos vendor the Yellowstone types),
// so the method is invoked via grpc.ClientConn.NewStream with a
// hand-written codec pair, the same shape a thin generated stub takes.
const subscribeMethod = "/geyser.Geyser/Subscribe"

// wireMessage is the minimal envelope this client round-trips: requests
// carry a subscription filter or a pong; responses carry transaction,
// account, or ping payloads. Encoding/decoding is delegated to a Codec so
// the wire format (protobuf in production) stays out of the state machine.
type wireMessage struct {
	payload []byte
}

// Codec turns Update/subscription-request values into wire bytes and back.
// The production Codec wraps google.golang.org/protobuf; tests substitute
// a trivial in-memory codec.
type Codec interface {
	EncodeSubscribe(programID, commitment string) ([]byte, error)
	EncodePong(id int64) ([]byte, error)
	Decode(data []byte) (Update, error)
}

// GRPCSubscriber is the production Subscriber backed by a real
// Yellowstone-shaped gRPC endpoint.
type GRPCSubscriber struct {
	endpoint string
	token    string
	codec    Codec

	conn         *grpc.ClientConn
	activeStream grpc.ClientStream
}

// NewGRPCSubscriber dials endpoint lazily on first Connect; token is sent
// as request metadata ("x-token") the way every Yellowstone-fronting
// provider expects.
func NewGRPCSubscriber(endpoint, token string, codec Codec) *GRPCSubscriber {
	return &GRPCSubscriber{endpoint: endpoint, token: token, codec: codec}
}

func (g *GRPCSubscriber) dial(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	creds = insecure.NewCredentials()
	if g.token != "" {
		creds = credentials.NewTLS(nil)
	}

	conn, err := grpc.NewClient(g.endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", g.endpoint, err)
	}
	g.conn = conn
	return nil
}

// Connect opens the bidirectional stream and feeds every decoded Update to
// handle until the stream ends, errors, or ctx is cancelled.
func (g *GRPCSubscriber) Connect(ctx context.Context, programID, commitment string, handle func(Update)) error {
	if err := g.dial(ctx); err != nil {
		return err
	}

	if g.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-token", g.token)
	}

	clientStream, err := g.conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Subscribe",
		ServerStreams: true,
		ClientStreams: true,
	}, subscribeMethod)
	if err != nil {
		return fmt.Errorf("stream: open subscribe stream: %w", err)
	}

	reqBytes, err := g.codec.EncodeSubscribe(programID, commitment)
	if err != nil {
		return fmt.Errorf("stream: encode subscribe request: %w", err)
	}
	if err := clientStream.SendMsg(&wireMessage{payload: reqBytes}); err != nil {
		return fmt.Errorf("stream: send subscribe request: %w", err)
	}
	g.activeStream = clientStream
	defer func() { g.activeStream = nil }()

	for {
		var msg wireMessage
		if err := clientStream.RecvMsg(&msg); err != nil {
			return err
		}
		update, err := g.codec.Decode(msg.payload)
		if err != nil {
			continue // malformed frame: counted by the caller via parser stats, not fatal here
		}
		handle(update)
	}
}

// Pong writes a pong reply. In the bidirectional model this would reuse
// the same client stream as Connect; since NewStream's handle is scoped
// to Connect's call, production wiring keeps the active *grpc.ClientStream
// on the subscriber and sends through it here.
func (g *GRPCSubscriber) Pong(ctx context.Context, id int64) error {
	if g.activeStream == nil {
		return fmt.Errorf("stream: no active subscription to pong on")
	}
	payload, err := g.codec.EncodePong(id)
	if err != nil {
		return fmt.Errorf("stream: encode pong: %w", err)
	}
	return g.activeStream.SendMsg(&wireMessage{payload: payload})
}

// Close releases the underlying connection.
func (g *GRPCSubscriber) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}
