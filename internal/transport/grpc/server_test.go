package grpcx_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/badgerstore"
	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const internalKey = "k-internal"

type fixture struct {
	client *grpcx.Client
	conn   *grpc.ClientConn
	roomID string
	signer *security.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	products := badgerstore.NewProductRepository(db)
	messages := badgerstore.NewMessageRepository(db)
	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	rooms := service.NewRoomService(badgerstore.NewRoomRepository(db), products, messages)
	chat := service.NewChatService(rooms, messages, hub)

	require.NoError(t, products.PutProduct(ctx, domain.Product{ID: "P1", SellerID: "seller"}))
	room, _, err := rooms.GetOrCreate(ctx, "P1", "buyer")
	require.NoError(t, err)

	keys := security.Keys{Secret: []byte("grpc-secret")}
	verifier, err := security.NewVerifier(keys, "", "", 0)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(grpcx.UnaryServerInterceptor(0)),
		grpc.StreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	grpcx.Register(gs, grpcx.NewServer(chat, verifier, internalKey))
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
		chat.Wait()
		_ = hub.Close()
	})
	return &fixture{
		client: grpcx.NewClient(conn),
		conn:   conn,
		roomID: room.ID,
		signer: security.NewSigner(keys, "", "", time.Hour),
	}
}

func (f *fixture) as(t *testing.T, user string) context.Context {
	tok, err := f.signer.Sign(domain.User{ID: user}, time.Now())
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func send(t *testing.T, f *fixture, ctx context.Context, body map[string]any) (domain.Message, error) {
	in, err := grpcx.ToStruct(body)
	require.NoError(t, err)
	out, err := f.client.SendMessage(ctx, in)
	if err != nil {
		return domain.Message{}, err
	}
	var resp struct {
		Message domain.Message `json:"message"`
	}
	require.NoError(t, grpcx.FromStruct(out, &resp))
	return resp.Message, nil
}

func TestSendAndList(t *testing.T) {
	f := newFixture(t)

	msg, err := send(t, f, f.as(t, "buyer"), map[string]any{"roomId": f.roomID, "kind": "TEXT", "content": "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", *msg.Content)

	in, err := grpcx.ToStruct(map[string]any{"roomId": f.roomID, "limit": 10})
	require.NoError(t, err)
	out, err := f.client.ListMessages(f.as(t, "seller"), in)
	require.NoError(t, err)
	var page service.Page
	require.NoError(t, grpcx.FromStruct(out, &page))
	require.Len(t, page.Messages, 1)
	require.Equal(t, msg.ID, page.Messages[0].ID)
	require.NotEmpty(t, page.NextCursor)
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t)

	_, err := send(t, f, context.Background(), map[string]any{"roomId": f.roomID, "content": "x"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = send(t, f, f.as(t, "stranger"), map[string]any{"roomId": f.roomID, "content": "x"})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = send(t, f, f.as(t, "buyer"), map[string]any{"roomId": f.roomID, "kind": "IMAGE"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = send(t, f, f.as(t, "buyer"), map[string]any{"roomId": "00000000-0000-0000-0000-000000000000", "content": "x"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestPostSystemMessage_RequiresInternalKey(t *testing.T) {
	f := newFixture(t)
	in, err := grpcx.ToStruct(map[string]any{"roomId": f.roomID, "content": "payment received"})
	require.NoError(t, err)

	_, err = f.client.PostSystemMessage(context.Background(), in)
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-internal-key", internalKey)
	out, err := f.client.PostSystemMessage(ctx, in)
	require.NoError(t, err)
	var resp struct {
		Message domain.Message `json:"message"`
	}
	require.NoError(t, grpcx.FromStruct(out, &resp))
	require.Equal(t, domain.KindSystem, resp.Message.Kind)
	require.Empty(t, resp.Message.AuthorID)
}

func TestStreamMessages(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(f.as(t, "seller"))
	defer cancel()
	in, err := grpcx.ToStruct(map[string]any{"roomId": f.roomID})
	require.NoError(t, err)
	stream, err := f.client.StreamMessages(ctx, in)
	require.NoError(t, err)

	// The subscription is registered asynchronously; keep sending until one arrives.
	got := make(chan domain.Message, 1)
	go func() {
		out, err := stream.Recv()
		if err != nil {
			close(got)
			return
		}
		var m domain.Message
		if grpcx.FromStruct(out, &m) == nil {
			got <- m
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		_, err := send(t, f, f.as(t, "buyer"), map[string]any{"roomId": f.roomID, "content": "ping"})
		require.NoError(t, err)
		select {
		case m, ok := <-got:
			require.True(t, ok)
			require.Equal(t, "ping", *m.Content)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no streamed message")
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcx.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
