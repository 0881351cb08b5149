package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hobbyhub/internal/notification"
	"hobbyhub/internal/realtime"
)

// Publisher is the synchronous broker path for chat messages.
type Publisher interface {
	Publish(ctx context.Context, key realtime.ChannelKey, payload []byte) error
}

// Notifier is the post-commit queue for side-channel notifications.
type Notifier interface {
	Notify(env notification.Envelope, userIDs ...int64)
}

// Service owns the chat write path (persist, then publish) and the direct
// channel resolver.
type Service struct {
	store    Store
	gateway  Publisher
	notifier Notifier
	log      zerolog.Logger
}

func NewService(store Store, gateway Publisher, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// SendMessage durably commits the message, then broadcasts it to the group's
// channel and nudges the other members' notification streams. The order is
// load-bearing: a subscriber that fetches history right after seeing the
// broadcast must find the message there. Broadcast failures are logged, not
// surfaced; the write already succeeded.
func (s *Service) SendMessage(ctx context.Context, groupID, userID int64, content string) (*Message, error) {
	msg, err := s.store.SaveMessage(ctx, groupID, userID, content)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if err := s.gateway.Publish(ctx, realtime.GroupChannel(groupID), payload); err != nil {
		s.log.Warn().Err(err).Int64("group_id", groupID).Msg("broadcast failed")
	}

	members, err := s.store.MemberIDs(ctx, groupID)
	if err != nil {
		s.log.Warn().Err(err).Int64("group_id", groupID).Msg("member lookup for notify failed")
		return msg, nil
	}
	recipients := members[:0]
	for _, uid := range members {
		if uid != userID {
			recipients = append(recipients, uid)
		}
	}
	if len(recipients) > 0 {
		s.notifier.Notify(notification.NewMessage(notification.MessagePayload{GroupID: groupID}), recipients...)
	}
	return msg, nil
}

func (s *Service) History(ctx context.Context, groupID int64, limit int) ([]*Message, error) {
	return s.store.History(ctx, groupID, limit)
}

func (s *Service) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return s.store.IsMember(ctx, groupID, userID)
}

func (s *Service) Conversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	return s.store.Conversations(ctx, userID)
}

// directKey normalizes an unordered user pair into the unique lookup key for
// their direct channel.
func directKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// GetOrCreateDirect returns the one direct channel between userID and
// targetID, creating it if needed. Creation is idempotent under concurrent
// callers: when two requests race, the unique index on the pair key lets
// exactly one insert win and the other re-reads the winner's channel. On a
// fresh create both participants get a NEW_CONVERSATION notification after
// the transaction has committed.
func (s *Service) GetOrCreateDirect(ctx context.Context, userID, targetID int64) (*Conversation, error) {
	if userID == targetID {
		return nil, ErrSelfChannel
	}

	key := directKey(userID, targetID)
	conv, err := s.store.DirectByKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	conv, err = s.store.CreateDirect(ctx, key, userID, targetID)
	if errors.Is(err, ErrDuplicateChannel) {
		// Lost the race; the winner's channel is the channel.
		return s.store.DirectByKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(notification.NewConversation(notification.ConversationPayload{
		ID:       conv.ID,
		Name:     conv.Name,
		IsDirect: true,
	}), userID, targetID)

	s.log.Info().Int64("channel_id", conv.ID).Msg("direct channel created")
	return conv, nil
}
