package grpcx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	mdAuthorization = "authorization"
	mdInternalKey   = "x-internal-key"
)

type ChatSvc interface {
	Send(ctx context.Context, in service.SendInput) (domain.Message, error)
	History(ctx context.Context, roomID, requesterID, cursor string, limit int) (service.Page, error)
	Live(ctx context.Context, roomID, requesterID string) (*broadcast.Subscription, error)
	PostSystem(ctx context.Context, roomID, content string) (domain.Message, error)
}

type Verifier interface {
	Verify(token string) (domain.User, error)
}

type Server struct {
	chat        ChatSvc
	verifier    Verifier
	internalKey string
}

func NewServer(chat ChatSvc, verifier Verifier, internalKey string) *Server {
	return &Server{chat: chat, verifier: verifier, internalKey: internalKey}
}

// Register installs the chat service and a health service reporting SERVING.
func Register(gs *grpc.Server, s *Server) *health.Server {
	gs.RegisterService(&ServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// -------- request shapes --------

type sendRequest struct {
	RoomID     string      `json:"roomId"`
	Kind       domain.Kind `json:"kind"`
	Content    *string     `json:"content"`
	Attachment *string     `json:"attachment"`
}

type listRequest struct {
	RoomID string `json:"roomId"`
	After  string `json:"after"`
	Limit  int    `json:"limit"`
}

type systemRequest struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type streamRequest struct {
	RoomID string `json:"roomId"`
}

// -------- methods --------

func (s *Server) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	var req sendRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	msg, err := s.chat.Send(ctx, service.SendInput{
		RoomID:      req.RoomID,
		RequesterID: user.ID,
		Kind:        req.Kind,
		Content:     req.Content,
		Attachment:  req.Attachment,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(map[string]any{"message": msg})
}

func (s *Server) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	var req listRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	page, err := s.chat.History(ctx, req.RoomID, user.ID, req.After, req.Limit)
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(page)
}

func (s *Server) PostSystemMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireInternal(ctx); err != nil {
		return nil, err
	}
	var req systemRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	msg, err := s.chat.PostSystem(ctx, req.RoomID, req.Content)
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(map[string]any{"message": msg})
}

func (s *Server) StreamMessages(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	user, err := s.userFromMD(ctx)
	if err != nil {
		return err
	}
	var req streamRequest
	if err := fromStruct(in, &req); err != nil {
		return err
	}

	sub, err := s.chat.Live(ctx, req.RoomID, user.ID)
	if err != nil {
		return mapErr(err)
	}
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "live stream closed")
			}
			out, err := toStruct(msg)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// -------- helpers --------

func (s *Server) userFromMD(ctx context.Context) (domain.User, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.User{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	auth := first(md.Get(mdAuthorization))
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") || len(auth) <= 7 {
		return domain.User{}, status.Error(codes.Unauthenticated, "missing authorization")
	}
	user, err := s.verifier.Verify(strings.TrimSpace(auth[7:]))
	if err != nil {
		return domain.User{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return user, nil
}

func (s *Server) requireInternal(ctx context.Context) error {
	if s.internalKey == "" {
		return status.Error(codes.PermissionDenied, "internal calls disabled")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	key := first(md.Get(mdInternalKey))
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.internalKey)) != 1 {
		return status.Error(codes.PermissionDenied, "invalid internal key")
	}
	return nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("grpc.toStruct marshal failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		slog.Error("grpc.toStruct unmarshal failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

// FromStruct decodes a response struct into a typed value.
func FromStruct(in *structpb.Struct, dst any) error {
	return fromStruct(in, dst)
}

// ToStruct encodes a typed request as a struct.
func ToStruct(v any) (*structpb.Struct, error) {
	return toStruct(v)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrTransientDelivery):
		return status.Error(codes.Unavailable, err.Error())
	default:
		slog.Error("grpc request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}
