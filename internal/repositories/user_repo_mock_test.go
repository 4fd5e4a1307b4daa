package repositories_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"palaver/internal/models"
	"palaver/internal/repositories"
)

func seed(t *testing.T, repo *repositories.MockUserRepository, id string) {
	t.Helper()
	assert.NoError(t, repo.Create(&models.User{ID: id, Nick: "user-" + id}))
}

func TestApplyBatchPushPull(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	seed(t, repo, "u1")
	seed(t, repo, "u2")

	err := repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldPendingsOutgoing, "u2"),
		}},
		{ID: "u2", Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldPendingsIncoming, "u1"),
		}},
	})
	assert.NoError(t, err)

	u1, _ := repo.GetByID("u1")
	u2, _ := repo.GetByID("u2")
	assert.True(t, u1.PendingsOutgoing.Contains("u2"))
	assert.True(t, u2.PendingsIncoming.Contains("u1"))

	// Pushing an existing member keeps the set a set.
	err = repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldPendingsOutgoing, "u2"),
		}},
	})
	assert.NoError(t, err)
	u1, _ = repo.GetByID("u1")
	assert.Len(t, u1.PendingsOutgoing, 1)

	err = repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldPendingsOutgoing, "u2"),
		}},
	})
	assert.NoError(t, err)
	u1, _ = repo.GetByID("u1")
	assert.Empty(t, u1.PendingsOutgoing)
}

func TestApplyBatchPartialFailure(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	seed(t, repo, "u1")

	// The second update targets a missing document: the batch stops there
	// and the first update stays written. This is the documented
	// no-cross-document-atomicity contract.
	err := repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldFriends, "ghost"),
		}},
		{ID: "ghost", Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldFriends, "u1"),
		}},
	})
	assert.Error(t, err)

	u1, _ := repo.GetByID("u1")
	assert.True(t, u1.Friends.Contains("ghost"))
}

func TestApplyBatchSetUnset(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	assert.NoError(t, repo.Create(&models.User{
		ID:         "u1",
		Nick:       "Ann",
		Token:      "tok",
		FriendCode: "ann#0001",
		Friends:    models.IDSet{"u2"},
	}))

	err := repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Unset(repositories.FieldToken),
			repositories.Unset(repositories.FieldFriendCode),
			repositories.Unset(repositories.FieldFriends),
			repositories.Set(repositories.FieldDeleted, true),
		}},
	})
	assert.NoError(t, err)

	u1, _ := repo.GetByID("u1")
	assert.Empty(t, u1.Token)
	assert.Empty(t, u1.FriendCode)
	assert.Empty(t, u1.Friends)
	assert.True(t, u1.Deleted)
}

func TestApplyBatchRejectsBadMutations(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	seed(t, repo, "u1")

	err := repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			repositories.Push("no_such_set", "u2"),
		}},
	})
	assert.Error(t, err)

	err = repo.ApplyBatch([]repositories.UserUpdate{
		{ID: "u1", Mutations: []repositories.FieldMutation{
			{Op: repositories.OpPush, Field: repositories.FieldFriends, Value: 42},
		}},
	})
	assert.Error(t, err)
}

func TestCountBots(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	seed(t, repo, "parent")
	assert.NoError(t, repo.Create(&models.User{ID: "b1", Bot: true, Parent: "parent"}))
	assert.NoError(t, repo.Create(&models.User{ID: "b2", Bot: true, Parent: "parent"}))
	assert.NoError(t, repo.Create(&models.User{ID: "b3", Bot: true, Parent: "parent", Deleted: true}))
	assert.NoError(t, repo.Create(&models.User{ID: "b4", Bot: true, Parent: "other"}))

	count, err := repo.CountBots("parent")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFriendCodeTaken(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	assert.NoError(t, repo.Create(&models.User{ID: "u1", FriendCode: "ann#0001"}))

	taken, err := repo.FriendCodeTaken("ann#0001")
	assert.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.FriendCodeTaken("free#0001")
	assert.NoError(t, err)
	assert.False(t, taken)
}

func TestGetMany(t *testing.T) {
	repo := repositories.NewMockUserRepository()
	seed(t, repo, "u1")
	seed(t, repo, "u2")

	users, err := repo.GetMany([]string{"u1", "missing", "u2"})
	assert.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = repo.GetMany(nil)
	assert.NoError(t, err)
	assert.Empty(t, users)
}
