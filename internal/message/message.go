package message

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/storage"

	"go.uber.org/zap"
)

// DefaultPageSize is how many messages one list call returns
const DefaultPageSize = 20

// Errors carry the text shown to clients.
var (
	ErrStoreFailed = errors.New(cnst.MsgMessageInsertFailed)
	ErrListFailed  = errors.New(cnst.MsgMessageListFailed)
)

// Store is the persistence the service needs
type Store interface {
	PutMessage(ctx context.Context, m *storage.Message) error
	QueryMessages(ctx context.Context, room string, from *storage.Key, limit int) (*storage.Page, error)
}

// Content is the body of a message
type Content struct {
	Text string `json:"text"`
}

// Message is the client-facing form of a chat message
type Message struct {
	Room     string  `json:"room"`
	Time     int64   `json:"time"`
	Content  Content `json:"content"`
	Username string  `json:"username"`
	Avatar   string  `json:"avatar"`
	Message  string  `json:"message"`
}

// List is one page of a room's history, newest first
type List struct {
	Messages []*Message   `json:"messages"`
	Next     *storage.Key `json:"next,omitempty"`
}

// Service stores and lists chat messages
type Service struct {
	logger   *zap.Logger
	store    Store
	pageSize int
	now      func() time.Time
}

// NewService creates a new message service
func NewService(logger *zap.Logger, store Store, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		logger:   logger.Named("message"),
		store:    store,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// NewID returns a message id: the epoch millis, a colon and 14 random hex characters.
// Ids of one room sort by time.
func NewID(millis int64) (string, error) {
	b := make([]byte, 7)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s", millis, hex.EncodeToString(b)), nil
}

// Add stores a new message in room and returns it with its id and time set
func (s *Service) Add(ctx context.Context, room, username, avatar, text string) (*Message, error) {
	m := &Message{
		Room:     room,
		Time:     s.now().UnixMilli(),
		Content:  Content{Text: text},
		Username: username,
		Avatar:   avatar,
	}

	id, err := NewID(m.Time)
	if err != nil {
		s.logger.Error("failed to generate message id", zap.Error(err))
		return nil, ErrStoreFailed
	}
	m.Message = id

	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, ErrStoreFailed
	}

	err = s.store.PutMessage(ctx, &storage.Message{
		Room:     m.Room,
		Message:  m.Message,
		Username: m.Username,
		Avatar:   m.Avatar,
		Content:  string(content),
		Time:     m.Time,
	})
	if err != nil {
		s.logger.Error("failed to store message", zap.String("room", room), zap.Error(err))
		return nil, ErrStoreFailed
	}
	return m, nil
}

// ListFromRoom returns the newest messages of room, continuing after from when it names a message.
func (s *Service) ListFromRoom(ctx context.Context, room string, from *storage.Key) (*List, error) {
	page, err := s.store.QueryMessages(ctx, room, from, s.pageSize)
	if err != nil {
		s.logger.Error("failed to list messages", zap.String("room", room), zap.Error(err))
		return nil, ErrListFailed
	}

	list := &List{Messages: make([]*Message, 0, len(page.Items)), Next: page.Next}
	for _, item := range page.Items {
		m := &Message{
			Room:     item.Room,
			Time:     item.Time,
			Username: item.Username,
			Avatar:   item.Avatar,
			Message:  item.Message,
		}
		if err := json.Unmarshal([]byte(item.Content), &m.Content); err != nil {
			s.logger.Warn("skipping message with undecodable content",
				zap.String("room", item.Room),
				zap.String("message", item.Message),
				zap.Error(err))
			continue
		}
		list.Messages = append(list.Messages, m)
	}
	return list, nil
}
