package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/metrics"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MaxContentLen         = 4000
	DefaultConfirmContent = "order confirmation requested"

	defaultPublishTimeout = 5 * time.Second
)

// Authority authorizes a requester against a room.
type Authority interface {
	Resolve(ctx context.Context, roomID, requesterID string) (domain.Room, domain.Role, error)
}

type SendInput struct {
	RoomID      string
	RequesterID string
	Kind        domain.Kind
	Content     *string
	Attachment  *string
}

type Page struct {
	Messages   []domain.Message `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

// ChatService serves history, live streams and sends for authorized participants.
type ChatService struct {
	auth     Authority
	messages MessageStore
	bus      broadcast.Broadcaster

	publishTimeout time.Duration
	inflight       sync.WaitGroup
}

func NewChatService(auth Authority, messages MessageStore, bus broadcast.Broadcaster) *ChatService {
	return &ChatService{
		auth:           auth,
		messages:       messages,
		bus:            bus,
		publishTimeout: defaultPublishTimeout,
	}
}

// WithPublishTimeout bounds each background publish.
func (s *ChatService) WithPublishTimeout(d time.Duration) *ChatService {
	if d > 0 {
		s.publishTimeout = d
	}
	return s
}

// Send stores the message and returns it; the broadcast runs in the background
// and its failure never fails the send.
func (s *ChatService) Send(ctx context.Context, in SendInput) (domain.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.send")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", in.RoomID), attribute.String("message.kind", string(in.Kind)))

	_, role, err := s.auth.Resolve(ctx, in.RoomID, in.RequesterID)
	if err != nil {
		return domain.Message{}, err
	}

	nm, err := normalize(in, role)
	if err != nil {
		metrics.SendRejected.WithLabelValues(rejectReason(err)).Inc()
		return domain.Message{}, err
	}

	msg, err := s.messages.Append(ctx, nm)
	if err != nil {
		slog.ErrorContext(ctx, "chat.send.append failed", "room", in.RoomID, slog.Any("err", err))
		return domain.Message{}, fmt.Errorf("%w: append: %w", domain.ErrStore, err)
	}
	metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()

	s.publish(ctx, msg)
	return msg, nil
}

// PostSystem appends an authorless SYSTEM message on behalf of the platform.
func (s *ChatService) PostSystem(ctx context.Context, roomID, content string) (domain.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.postSystem")
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, domain.Validationf("content is required for %s", domain.KindSystem)
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		return domain.Message{}, domain.Validationf("content exceeds %d characters", MaxContentLen)
	}

	msg, err := s.messages.Append(ctx, domain.NewMessage{RoomID: roomID, Kind: domain.KindSystem, Content: &content})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, domain.ErrRoomNotFound
		}
		slog.ErrorContext(ctx, "chat.postSystem.append failed", "room", roomID, slog.Any("err", err))
		return domain.Message{}, fmt.Errorf("%w: append: %w", domain.ErrStore, err)
	}
	metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()

	s.publish(ctx, msg)
	return msg, nil
}

// History returns messages after cursor; an empty cursor starts from the first message.
func (s *ChatService) History(ctx context.Context, roomID, requesterID, cursor string, limit int) (Page, error) {
	ctx, span := tracer.Start(ctx, "chat.history")
	defer span.End()

	if _, _, err := s.auth.Resolve(ctx, roomID, requesterID); err != nil {
		return Page{}, err
	}

	msgs, next, err := s.messages.ListSince(ctx, roomID, cursor, limit)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return Page{}, err
		}
		slog.ErrorContext(ctx, "chat.history.listSince failed", "room", roomID, slog.Any("err", err))
		return Page{}, fmt.Errorf("%w: list messages: %w", domain.ErrStore, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return Page{Messages: msgs, NextCursor: next}, nil
}

// Live authorizes once and subscribes to the room topic. The subscription ends
// when ctx is done or the caller cancels it.
func (s *ChatService) Live(ctx context.Context, roomID, requesterID string) (*broadcast.Subscription, error) {
	if _, _, err := s.auth.Resolve(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	sub, err := s.bus.Subscribe(ctx, roomID)
	if err != nil {
		slog.WarnContext(ctx, "chat.live.subscribe failed", "room", roomID, slog.Any("err", err))
		return nil, fmt.Errorf("%w: subscribe: %w", domain.ErrTransientDelivery, err)
	}
	return sub, nil
}

// Wait blocks until background publishes have finished.
func (s *ChatService) Wait() {
	s.inflight.Wait()
}

func (s *ChatService) publish(ctx context.Context, msg domain.Message) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()

		if err := s.bus.Publish(ctx, msg.RoomID, msg); err != nil {
			slog.WarnContext(ctx, "chat.send.publish failed",
				"room", msg.RoomID, "msg", msg.ID,
				slog.Any("err", fmt.Errorf("%w: %w", domain.ErrTransientDelivery, err)))
		}
	}()
}

func normalize(in SendInput, role domain.Role) (domain.NewMessage, error) {
	kind := in.Kind
	if kind == "" {
		kind = domain.KindText
	}
	content := trimmed(in.Content)
	attachment := trimmed(in.Attachment)

	switch kind {
	case domain.KindText:
		if content == nil {
			return domain.NewMessage{}, domain.Validationf("content is required for %s", kind)
		}
	case domain.KindImage:
		if attachment == nil {
			return domain.NewMessage{}, domain.Validationf("attachment is required for %s", kind)
		}
	case domain.KindConfirm:
		if role != domain.RoleSeller {
			return domain.NewMessage{}, fmt.Errorf("%w: only the seller may send %s", domain.ErrForbidden, kind)
		}
		if content == nil {
			c := DefaultConfirmContent
			content = &c
		}
	case domain.KindSystem:
		return domain.NewMessage{}, domain.Validationf("%s messages cannot be sent by participants", kind)
	default:
		return domain.NewMessage{}, domain.Validationf("unknown kind %q", kind)
	}

	if kind != domain.KindImage && attachment != nil {
		return domain.NewMessage{}, domain.Validationf("attachment is only allowed for %s", domain.KindImage)
	}
	if content != nil && utf8.RuneCountInString(*content) > MaxContentLen {
		return domain.NewMessage{}, domain.Validationf("content exceeds %d characters", MaxContentLen)
	}

	return domain.NewMessage{
		RoomID:     in.RoomID,
		AuthorID:   in.RequesterID,
		Kind:       kind,
		Content:    content,
		Attachment: attachment,
	}, nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func rejectReason(err error) string {
	if errors.Is(err, domain.ErrForbidden) {
		return "forbidden"
	}
	return "validation"
}
