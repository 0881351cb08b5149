package user

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*User
	groups map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[int64]*User{}, groups: map[int64][]int64{}}
}

func (s *fakeStore) CreateUser(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	s.nextID++
	u.ID = s.nextID
	cp := *u
	s.byID[u.ID] = &cp
	return u, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GetUserByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GroupIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[userID], nil
}

func (s *fakeStore) SearchUsers(_ context.Context, query string) ([]User, error) {
	return nil, nil
}

func TestRegisterHashesPassword(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "secret")

	u, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "alice",
		Email:    "alice@example.com",
		Password: "hunter2",
		Hobbies:  []string{"chess"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Password != "" {
		t.Fatal("password leaked in response")
	}

	stored := store.byID[u.ID]
	if stored.Password == "hunter2" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter2")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "secret")

	if _, err := svc.Register(context.Background(), &RegisterRequest{
		Name: "alice", Email: "alice@example.com", Password: "hunter2",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := svc.Login(context.Background(), &LoginRequest{Email: "alice@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	id, name, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id != resp.ID || name != "alice" {
		t.Fatalf("claims id=%d name=%q", id, name)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "secret")

	if _, err := svc.Register(context.Background(), &RegisterRequest{
		Name: "alice", Email: "alice@example.com", Password: "hunter2",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "alice@example.com", Password: "wrong"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "nobody@example.com", Password: "x"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestValidateTokenRejectsForgedToken(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "secret")
	other := NewService(store, "different-secret")

	if _, err := svc.Register(context.Background(), &RegisterRequest{
		Name: "alice", Email: "alice@example.com", Password: "hunter2",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := svc.Login(context.Background(), &LoginRequest{Email: "alice@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, _, err := other.ValidateToken(resp.AccessToken); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestProfileIncludesHobbiesAndGroups(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "secret")

	u, err := svc.Register(context.Background(), &RegisterRequest{
		Name: "alice", Email: "alice@example.com", Password: "x", Hobbies: []string{"chess", "go"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	store.groups[u.ID] = []int64{7, 12}

	p, err := svc.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(p.Hobbies) != 2 || len(p.GroupMemberships) != 2 {
		t.Fatalf("profile %+v", p)
	}
}
