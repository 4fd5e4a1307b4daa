package services_test

import (
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"palaver/internal/models"
	"palaver/internal/notify"
	"palaver/internal/repositories"
	"palaver/internal/services"
)

// MockEventPublisher is a mock implementation of services.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishRelationEvent(event map[string]interface{}) error {
	args := m.Called(event)
	return args.Error(0)
}

// TestMain is used to set up the test environment.
func TestMain(m *testing.M) {
	log.SetOutput(os.Stdout)
	code := m.Run()
	os.Exit(code)
}

type relationFixture struct {
	repo     *repositories.MockUserRepository
	registry *notify.Registry
	svc      *services.RelationService
}

func newRelationFixture(t *testing.T) *relationFixture {
	t.Helper()
	repo := repositories.NewMockUserRepository()
	registry := notify.NewRegistry()
	return &relationFixture{
		repo:     repo,
		registry: registry,
		svc:      services.NewRelationService(repo, registry, nil),
	}
}

func (f *relationFixture) addUser(t *testing.T, id, nick string) *models.User {
	t.Helper()
	u := &models.User{
		ID:               id,
		Nick:             nick,
		Blocked:          models.IDSet{},
		Friends:          models.IDSet{},
		PendingsOutgoing: models.IDSet{},
		PendingsIncoming: models.IDSet{},
	}
	assert.NoError(t, f.repo.Create(u))
	return u
}

func (f *relationFixture) addBot(t *testing.T, id, nick, parent string) *models.User {
	t.Helper()
	u := &models.User{ID: id, Nick: nick, Bot: true, Parent: parent}
	assert.NoError(t, f.repo.Create(u))
	return u
}

func (f *relationFixture) reload(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.repo.GetByID(id)
	assert.NoError(t, err)
	return u
}

func TestRelationService_SendRequest(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	err := f.svc.SendRequest(ann, "u2")
	assert.NoError(t, err)

	// The pending edge pair is matched and is the only relation between them.
	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.True(t, a.PendingsOutgoing.Contains("u2"))
	assert.True(t, b.PendingsIncoming.Contains("u1"))
	assert.False(t, a.Friends.Contains("u2"))
	assert.False(t, a.Blocked.Contains("u2"))
	assert.False(t, b.Friends.Contains("u1"))
	assert.False(t, b.PendingsOutgoing.Contains("u1"))

	// A second request while the first is pending fails.
	err = f.svc.SendRequest(a, "u2")
	assert.True(t, models.IsKind(err, models.KindInvalidUser))
}

func TestRelationService_SendRequestValidation(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	bob := f.addUser(t, "u2", "Bob")
	bot := f.addBot(t, "b1", "Clanker", "u1")

	t.Run("BotActor", func(t *testing.T) {
		err := f.svc.SendRequest(bot, "u2")
		assert.True(t, models.IsKind(err, models.KindUnavailableForBots))
		assert.Empty(t, f.reload(t, "u2").PendingsIncoming)
	})

	t.Run("BotTarget", func(t *testing.T) {
		err := f.svc.SendRequest(ann, "b1")
		assert.True(t, models.IsKind(err, models.KindInvalidUser))
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		err := f.svc.SendRequest(ann, "missing")
		assert.True(t, models.IsKind(err, models.KindInvalidUser))
	})

	t.Run("SelfTarget", func(t *testing.T) {
		err := f.svc.SendRequest(ann, "u1")
		assert.True(t, models.IsKind(err, models.KindInvalidUser))
	})

	t.Run("DeletedTarget", func(t *testing.T) {
		ghost := f.addUser(t, "u3", "Ghost")
		ghost.Deleted = true
		assert.NoError(t, f.repo.ApplyBatch([]repositories.UserUpdate{
			{ID: "u3", Mutations: []repositories.FieldMutation{
				repositories.Set(repositories.FieldDeleted, true),
			}},
		}))
		err := f.svc.SendRequest(ann, "u3")
		assert.True(t, models.IsKind(err, models.KindInvalidUser))
	})

	t.Run("TargetBlockedActor", func(t *testing.T) {
		assert.NoError(t, f.svc.Block(bob, "u1"))
		err := f.svc.SendRequest(f.reload(t, "u1"), "u2")
		assert.True(t, models.IsKind(err, models.KindInvalidUser))
	})
}

func TestRelationService_RespondRequestConfirm(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))

	bob := f.reload(t, "u2")
	assert.NoError(t, f.svc.RespondRequest(bob, "u1", true))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.True(t, a.Friends.Contains("u2"))
	assert.True(t, b.Friends.Contains("u1"))
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, a.PendingsIncoming)
	assert.Empty(t, b.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)
}

func TestRelationService_RespondRequestDecline(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))

	bob := f.reload(t, "u2")
	assert.NoError(t, f.svc.RespondRequest(bob, "u1", false))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.Empty(t, a.Friends)
	assert.Empty(t, b.Friends)
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)
}

func TestRelationService_RespondRequestWithoutPending(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	err := f.svc.RespondRequest(ann, "u2", true)
	assert.True(t, models.IsKind(err, models.KindUserNotInGroup))
}

func TestRelationService_CancelRequest(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))
	assert.NoError(t, f.svc.CancelRequest(ann, "u2"))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)

	// Cancelling again presupposes a pending edge that no longer exists.
	err := f.svc.CancelRequest(a, "u2")
	assert.True(t, models.IsKind(err, models.KindUserNotInGroup))
}

func TestRelationService_FriendshipLifecycle(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))
	assert.NoError(t, f.svc.RespondRequest(f.reload(t, "u2"), "u1", true))

	a := f.reload(t, "u1")
	assert.True(t, a.Friends.Contains("u2"))

	assert.NoError(t, f.svc.RemoveFriend(a, "u2"))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.Empty(t, a.Friends)
	assert.Empty(t, b.Friends)
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)

	err := f.svc.RemoveFriend(a, "u2")
	assert.True(t, models.IsKind(err, models.KindUserNotInGroup))
}

func TestRelationService_BlockSupersedesPending(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))

	bob := f.reload(t, "u2")
	assert.NoError(t, f.svc.Block(bob, "u1"))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.True(t, b.Blocked.Contains("u1"))
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)
	assert.Empty(t, a.Friends)
	assert.Empty(t, b.Friends)

	// The blocked side can no longer send requests.
	err := f.svc.SendRequest(a, "u2")
	assert.True(t, models.IsKind(err, models.KindInvalidUser))
}

func TestRelationService_BlockSupersedesFriendship(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))
	assert.NoError(t, f.svc.RespondRequest(f.reload(t, "u2"), "u1", true))

	a := f.reload(t, "u1")
	assert.NoError(t, f.svc.Block(a, "u2"))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.True(t, a.Blocked.Contains("u2"))
	assert.Empty(t, a.Friends)
	assert.Empty(t, b.Friends)
	assert.Empty(t, a.PendingsIncoming)
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)
	assert.Empty(t, b.PendingsOutgoing)
}

func TestRelationService_BlockIdempotenceBoundary(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.Block(ann, "u2"))
	before := f.reload(t, "u1")

	err := f.svc.Block(f.reload(t, "u1"), "u2")
	assert.True(t, models.IsKind(err, models.KindUserNotInGroup))

	// The failed call changed nothing.
	after := f.reload(t, "u1")
	assert.Equal(t, before.Blocked, after.Blocked)
	assert.Equal(t, before.Friends, after.Friends)
}

func TestRelationService_Unblock(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.Block(ann, "u2"))
	assert.NoError(t, f.svc.Unblock(ann, "u2"))
	assert.Empty(t, f.reload(t, "u1").Blocked)

	err := f.svc.Unblock(f.reload(t, "u1"), "u2")
	assert.True(t, models.IsKind(err, models.KindUserNotInGroup))
}

func TestRelationService_BotActorAlwaysRejected(t *testing.T) {
	f := newRelationFixture(t)
	f.addUser(t, "u1", "Ann")
	bot := f.addBot(t, "b1", "Clanker", "u1")

	assert.True(t, models.IsKind(f.svc.SendRequest(bot, "u1"), models.KindUnavailableForBots))
	assert.True(t, models.IsKind(f.svc.RespondRequest(bot, "u1", true), models.KindUnavailableForBots))
	assert.True(t, models.IsKind(f.svc.CancelRequest(bot, "u1"), models.KindUnavailableForBots))
	assert.True(t, models.IsKind(f.svc.RemoveFriend(bot, "u1"), models.KindUnavailableForBots))

	// No state changed anywhere.
	assert.Empty(t, f.reload(t, "u1").PendingsIncoming)
	assert.Empty(t, f.reload(t, "b1").PendingsOutgoing)
}

func TestRelationService_ListFriendsOrdering(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")
	f.addUser(t, "u3", "Zoe")
	f.addUser(t, "u4", "Cleo")

	for _, id := range []string{"u2", "u3", "u4"} {
		assert.NoError(t, f.svc.SendRequest(ann, id))
		assert.NoError(t, f.svc.RespondRequest(f.reload(t, id), "u1", true))
		ann = f.reload(t, "u1")
	}

	friends, err := f.svc.ListFriends(ann)
	assert.NoError(t, err)
	nicks := make([]string, 0, len(friends))
	for _, p := range friends {
		nicks = append(nicks, p.Nick)
	}
	assert.Equal(t, []string{"Zoe", "Cleo", "Bob"}, nicks)
}

func TestRelationService_ListFriendsEmptyForBots(t *testing.T) {
	f := newRelationFixture(t)
	f.addUser(t, "u1", "Ann")
	bot := f.addBot(t, "b1", "Clanker", "u1")

	friends, err := f.svc.ListFriends(bot)
	assert.NoError(t, err)
	assert.Empty(t, friends)
}

func TestRelationService_ListBlockedProjection(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.Block(ann, "u2"))

	blocked, err := f.svc.ListBlocked(f.reload(t, "u1"))
	assert.NoError(t, err)
	assert.Len(t, blocked, 1)
	assert.Equal(t, "u2", blocked[0].ID)
	assert.Equal(t, "Bob", blocked[0].Nick)
}

func TestRelationService_NotifiesLiveConnections(t *testing.T) {
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	conn := notify.NewConn("u2", nil, f.registry)
	f.registry.Add(conn)

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))
	assert.Equal(t, 1, conn.Pending())

	assert.NoError(t, f.svc.RespondRequest(f.reload(t, "u2"), "u1", true))

	annConn := notify.NewConn("u1", nil, f.registry)
	f.registry.Add(annConn)
	assert.NoError(t, f.svc.RemoveFriend(f.reload(t, "u2"), "u1"))
	assert.Equal(t, 1, annConn.Pending())
}

func TestRelationService_PublishesBusEvents(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	bus := new(MockEventPublisher)
	svc := services.NewRelationService(repo, nil, bus)

	ann := &models.User{ID: "u1", Nick: "Ann"}
	bob := &models.User{ID: "u2", Nick: "Bob"}
	assert.NoError(t, repo.Create(ann))
	assert.NoError(t, repo.Create(bob))

	bus.On("PublishRelationEvent", mock.MatchedBy(func(ev map[string]interface{}) bool {
		return ev["event"] == "relation.request_sent" && ev["actor"] == "u1" && ev["target"] == "u2"
	})).Return(nil).Once()
	assert.NoError(t, svc.SendRequest(ann, "u2"))
	bus.AssertExpectations(t)
}

func TestRelationService_Scenario(t *testing.T) {
	// Register Ann and Bob, request, accept, then unfriend.
	f := newRelationFixture(t)
	ann := f.addUser(t, "u1", "Ann")
	f.addUser(t, "u2", "Bob")

	assert.NoError(t, f.svc.SendRequest(ann, "u2"))
	assert.NoError(t, f.svc.RespondRequest(f.reload(t, "u2"), "u1", true))

	a, b := f.reload(t, "u1"), f.reload(t, "u2")
	assert.True(t, a.Friends.Contains("u2"))
	assert.True(t, b.Friends.Contains("u1"))
	assert.Empty(t, a.PendingsOutgoing)
	assert.Empty(t, b.PendingsIncoming)

	assert.NoError(t, f.svc.RemoveFriend(a, "u2"))

	a, b = f.reload(t, "u1"), f.reload(t, "u2")
	assert.Empty(t, a.Friends)
	assert.Empty(t, b.Friends)
	assert.False(t, a.InAnyRelation("u2"))
	assert.False(t, b.InAnyRelation("u1"))
}
