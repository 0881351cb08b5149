package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hobbyhub/internal/notification"
	"hobbyhub/internal/realtime"
)

// fakeStore is an in-memory Store with the same uniqueness semantics as the
// Postgres schema (unique direct_key, membership per user).
type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	names   map[int64]string
	members map[int64][]int64 // group -> user ids
	history map[int64][]*Message
	directs map[string]*Conversation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		names:   map[int64]string{},
		members: map[int64][]int64{},
		history: map[int64][]*Message{},
		directs: map[string]*Conversation{},
	}
}

func (s *fakeStore) addUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[id] = name
}

func (s *fakeStore) addMember(groupID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[groupID] = append(s.members[groupID], userID)
}

func (s *fakeStore) SaveMessage(_ context.Context, groupID, userID int64, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := &Message{
		ID:        s.nextID,
		Content:   content,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		GroupID:   groupID,
		User:      Author{ID: userID, Name: s.names[userID]},
	}
	s.history[groupID] = append(s.history[groupID], msg)
	return msg, nil
}

func (s *fakeStore) History(_ context.Context, groupID int64, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.history[groupID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *fakeStore) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MemberIDs(_ context.Context, groupID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.members[groupID]))
	copy(out, s.members[groupID])
	return out, nil
}

func (s *fakeStore) Conversations(_ context.Context, userID int64) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Conversation
	for _, c := range s.directs {
		for gid, users := range s.members {
			if gid != c.ID {
				continue
			}
			for _, id := range users {
				if id == userID {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

func (s *fakeStore) DirectByKey(_ context.Context, key string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.directs[key]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) CreateDirect(_ context.Context, key string, userA, userB int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.directs[key]; ok {
		return nil, ErrDuplicateChannel
	}
	s.nextID++
	c := &Conversation{
		ID:        s.nextID,
		Name:      s.names[userA] + " & " + s.names[userB],
		IsDirect:  true,
		CreatedAt: time.Now().UTC(),
	}
	s.directs[key] = c
	s.members[c.ID] = []int64{userA, userB}
	return c, nil
}

// recordingNotifier captures Notify calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	env   notification.Envelope
	users []int64
}

func (n *recordingNotifier) Notify(env notification.Envelope, userIDs ...int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, len(userIDs))
	copy(ids, userIDs)
	n.calls = append(n.calls, notifyCall{env: env, users: ids})
}

func (n *recordingNotifier) byType(t notification.Type) []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifyCall
	for _, c := range n.calls {
		if c.env.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// recordConn collects payloads handed to it by a relay.
type recordConn struct {
	id  string
	mu  sync.Mutex
	got [][]byte
}

func (c *recordConn) ID() string { return c.id }

func (c *recordConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, payload)
	return nil
}

func (c *recordConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.got))
	copy(out, c.got)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestService(store Store) (*Service, *realtime.Gateway, *recordingNotifier) {
	gw := realtime.NewGateway(realtime.NewMemoryBroker(), zerolog.Nop())
	notifier := &recordingNotifier{}
	return NewService(store, gw, notifier, zerolog.Nop()), gw, notifier
}

func TestSendMessageBroadcastsToSubscribers(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	store.addMember(7, 1)
	svc, gw, _ := newTestService(store)

	c1 := &recordConn{id: "c1"}
	if err := gw.Subscribe(context.Background(), realtime.GroupChannel(7), c1); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := svc.SendMessage(context.Background(), 7, 1, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, func() bool { return len(c1.received()) == 1 }, "broadcast not delivered")

	var got Message
	if err := json.Unmarshal(c1.received()[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Content != "hi" || got.GroupID != 7 {
		t.Fatalf("payload content=%q group_id=%d", got.Content, got.GroupID)
	}
	if got.User.Name != "alice" || got.User.ID != 1 {
		t.Fatalf("payload author %+v", got.User)
	}

	// Durable first: history already contains the broadcast message.
	msgs, err := svc.History(context.Background(), 7, 50)
	if err != nil || len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("history after send: msgs=%v err=%v", msgs, err)
	}

	// After the last subscriber leaves, publishing still succeeds with no
	// local recipients.
	gw.Unsubscribe(realtime.GroupChannel(7), c1)
	if _, err := svc.SendMessage(context.Background(), 7, 1, "anyone?"); err != nil {
		t.Fatalf("send with no subscribers: %v", err)
	}
	if len(c1.received()) != 1 {
		t.Fatal("unsubscribed connection received a payload")
	}
}

func TestSendMessageNotifiesOtherMembersOnly(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	store.addMember(7, 1)
	store.addMember(7, 2)
	store.addMember(7, 3)
	svc, _, notifier := newTestService(store)

	if _, err := svc.SendMessage(context.Background(), 7, 1, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	calls := notifier.byType(notification.TypeNewMessage)
	if len(calls) != 1 {
		t.Fatalf("expected 1 NEW_MESSAGE notify, got %d", len(calls))
	}
	if got := calls[0].users; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected recipients %v", got)
	}
}

func TestGetOrCreateDirectRejectsSelf(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	svc, _, notifier := newTestService(store)

	if _, err := svc.GetOrCreateDirect(context.Background(), 1, 1); !errors.Is(err, ErrSelfChannel) {
		t.Fatalf("expected ErrSelfChannel, got %v", err)
	}
	if len(store.directs) != 0 {
		t.Fatal("self-DM created a channel")
	}
	if len(notifier.calls) != 0 {
		t.Fatal("self-DM dispatched a notification")
	}
}

func TestGetOrCreateDirectIsUnorderedAndIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	store.addUser(2, "bob")
	svc, _, notifier := newTestService(store)

	first, err := svc.GetOrCreateDirect(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.GetOrCreateDirect(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("reverse lookup: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("pair order changed the channel: %d vs %d", first.ID, second.ID)
	}
	if len(store.directs) != 1 {
		t.Fatalf("expected 1 direct channel, got %d", len(store.directs))
	}

	// Only the creating call notifies.
	if calls := notifier.byType(notification.TypeNewConversation); len(calls) != 1 {
		t.Fatalf("expected 1 NEW_CONVERSATION notify, got %d", len(calls))
	}
}

func TestGetOrCreateDirectConcurrent(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	store.addUser(2, "bob")
	svc, _, _ := newTestService(store)

	const n = 16
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := svc.GetOrCreateDirect(context.Background(), a, b)
			if err != nil {
				t.Errorf("getOrCreate: %v", err)
				return
			}
			results <- conv.ID
		}(i)
	}
	wg.Wait()
	close(results)

	var want int64
	for id := range results {
		if want == 0 {
			want = id
		}
		if id != want {
			t.Fatalf("concurrent callers saw different channels: %d vs %d", id, want)
		}
	}
	if len(store.directs) != 1 {
		t.Fatalf("expected exactly 1 channel record, got %d", len(store.directs))
	}
}

func TestGetOrCreateDirectRecoversFromLostRace(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "alice")
	store.addUser(2, "bob")

	// racingStore misses the lookup once so the caller proceeds to create and
	// collides with the winner, exercising the duplicate-recovery path.
	winner, err := store.CreateDirect(context.Background(), directKey(1, 2), 1, 2)
	if err != nil {
		t.Fatalf("seed winner: %v", err)
	}
	svc, _, notifier := newTestService(&racingStore{fakeStore: store, misses: 1})

	conv, err := svc.GetOrCreateDirect(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("expected duplicate recovery, got %v", err)
	}
	if conv.ID != winner.ID {
		t.Fatalf("loser got channel %d, winner is %d", conv.ID, winner.ID)
	}
	if len(notifier.calls) != 0 {
		t.Fatal("lost race still dispatched a NEW_CONVERSATION")
	}
}

func TestNewConversationReachesBothUserChannels(t *testing.T) {
	store := newFakeStore()
	store.addUser(42, "alice")
	store.addUser(99, "bob")

	gw := realtime.NewGateway(realtime.NewMemoryBroker(), zerolog.Nop())
	dispatcher := notification.NewDispatcher(gw, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	svc := NewService(store, gw, dispatcher, zerolog.Nop())

	// Two live sessions for user 42, one for user 99.
	c1 := &recordConn{id: "c1"}
	c2 := &recordConn{id: "c2"}
	c3 := &recordConn{id: "c3"}
	for _, sub := range []struct {
		key  realtime.ChannelKey
		conn *recordConn
	}{
		{realtime.UserChannel(42), c1},
		{realtime.UserChannel(42), c2},
		{realtime.UserChannel(99), c3},
	} {
		if err := gw.Subscribe(ctx, sub.key, sub.conn); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	conv, err := svc.GetOrCreateDirect(ctx, 42, 99)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}

	for _, c := range []*recordConn{c1, c2, c3} {
		c := c
		waitFor(t, func() bool { return len(c.received()) == 1 }, "NEW_CONVERSATION not delivered")

		var env struct {
			Type    notification.Type                `json:"type"`
			Payload notification.ConversationPayload `json:"payload"`
		}
		if err := json.Unmarshal(c.received()[0], &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type != notification.TypeNewConversation {
			t.Fatalf("unexpected type %q", env.Type)
		}
		if env.Payload.ID != conv.ID || !env.Payload.IsDirect {
			t.Fatalf("payload references wrong channel: %+v", env.Payload)
		}
	}

	// Exactly once each: no second delivery shows up.
	time.Sleep(50 * time.Millisecond)
	for i, c := range []*recordConn{c1, c2, c3} {
		if got := len(c.received()); got != 1 {
			t.Fatalf("conn %d received %d notifications", i, got)
		}
	}
}

func TestDirectKeyNormalization(t *testing.T) {
	if directKey(2, 1) != directKey(1, 2) {
		t.Fatal("direct key depends on argument order")
	}
	if got, want := directKey(1, 2), "1:2"; got != want {
		t.Fatalf("directKey(1,2) = %q, want %q", got, want)
	}
	if directKey(1, 2) == directKey(1, 3) {
		t.Fatal("distinct pairs collide")
	}
	if directKey(11, 2) != "2:11" {
		t.Fatal("numeric ordering broken for multi-digit ids")
	}
}

// racingStore wraps fakeStore and pretends the direct channel does not exist
// for the first `misses` lookups.
type racingStore struct {
	*fakeStore
	mu     sync.Mutex
	misses int
}

func (s *racingStore) DirectByKey(ctx context.Context, key string) (*Conversation, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	s.mu.Unlock()
	return s.fakeStore.DirectByKey(ctx, key)
}
