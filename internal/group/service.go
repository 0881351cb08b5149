package group

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"hobbyhub/internal/notification"
)

// ErrHobbyRequired rejects creating or joining a group for a hobby the user
// does not have.
var ErrHobbyRequired = errors.New("group: hobby required")

// Store is the persistence boundary of the group feature.
type Store interface {
	CreateGroup(ctx context.Context, g *Group) (*Group, error)
	ListGroups(ctx context.Context, hobby string) ([]*Group, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	Join(ctx context.Context, groupID, userID int64) error
	Leave(ctx context.Context, groupID, userID int64) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	Members(ctx context.Context, groupID int64) ([]Member, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	MyGroups(ctx context.Context, userID int64) ([]*Group, error)
	CreatePost(ctx context.Context, p *Post) (*Post, error)
	ListPosts(ctx context.Context, groupID int64) ([]*Post, error)
}

// HobbyLookup is what we need from the user feature: the hobby names of a
// user, for the hobby gate on create/join.
type HobbyLookup interface {
	HobbiesOf(ctx context.Context, userID int64) ([]string, error)
}

// Notifier is the post-commit notification queue.
type Notifier interface {
	Notify(env notification.Envelope, userIDs ...int64)
}

type Service struct {
	store    Store
	hobbies  HobbyLookup
	notifier Notifier
	log      zerolog.Logger
}

func NewService(store Store, hobbies HobbyLookup, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		hobbies:  hobbies,
		notifier: notifier,
		log:      log.With().Str("component", "group").Logger(),
	}
}

func (s *Service) hasHobby(ctx context.Context, userID int64, hobby string) (bool, error) {
	names, err := s.hobbies.HobbiesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == hobby {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) CreateGroup(ctx context.Context, userID int64, req *CreateGroupRequest) (*Group, error) {
	ok, err := s.hasHobby(ctx, userID, req.Hobby)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHobbyRequired
	}

	return s.store.CreateGroup(ctx, &Group{
		Name:        req.Name,
		Description: req.Description,
		Hobby:       req.Hobby,
		CreatorID:   userID,
	})
}

func (s *Service) ListGroups(ctx context.Context, hobby string) ([]*Group, error) {
	return s.store.ListGroups(ctx, hobby)
}

func (s *Service) Join(ctx context.Context, groupID, userID int64) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	ok, err := s.hasHobby(ctx, userID, g.Hobby)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHobbyRequired
	}
	return s.store.Join(ctx, groupID, userID)
}

func (s *Service) Leave(ctx context.Context, groupID, userID int64) error {
	return s.store.Leave(ctx, groupID, userID)
}

func (s *Service) Members(ctx context.Context, groupID int64) ([]Member, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, groupID)
}

func (s *Service) MyGroups(ctx context.Context, userID int64) ([]*Group, error) {
	return s.store.MyGroups(ctx, userID)
}

// CreatePost commits the post, then fans a NEW_POST notification out to
// every other member of the group. Commit first, notify after: a recipient
// reacting to the notification must find the post in the listing.
func (s *Service) CreatePost(ctx context.Context, groupID, userID int64, req *CreatePostRequest) (*Post, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	post, err := s.store.CreatePost(ctx, &Post{
		Title:   req.Title,
		Content: req.Content,
		GroupID: groupID,
		OwnerID: userID,
	})
	if err != nil {
		return nil, err
	}

	ids, err := s.store.MemberIDs(ctx, groupID)
	if err != nil {
		s.log.Warn().Err(err).Int64("group_id", groupID).Msg("member lookup for notify failed")
		return post, nil
	}
	recipients := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) > 0 {
		s.notifier.Notify(notification.NewPost(notification.PostPayload{
			ID:        post.ID,
			Title:     post.Title,
			GroupID:   g.ID,
			GroupName: g.Name,
			AuthorID:  userID,
			CreatedAt: post.CreatedAt,
		}), recipients...)
	}
	return post, nil
}

func (s *Service) ListPosts(ctx context.Context, groupID, userID int64) ([]*Post, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListPosts(ctx, groupID)
}
