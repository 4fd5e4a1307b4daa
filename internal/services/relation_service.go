package services

import (
	"log"
	"sort"

	"palaver/internal/models"
	"palaver/internal/notify"
	"palaver/internal/repositories"
)

// EventPublisher is the outbound side of the event bus. Publish failures are
// logged, never surfaced: the bus is an optional audit/offline sink, not part
// of the relation state machine.
type EventPublisher interface {
	PublishRelationEvent(event map[string]interface{}) error
}

// RelationService enforces the friend/block/pending state machine over pairs
// of user ids. All validation happens against the actor's loaded relation
// sets before any write; every cross-document mutation goes out as one
// coordinated batch.
type RelationService struct {
	userRepo repositories.UserRepository
	registry *notify.Registry
	bus      EventPublisher
}

// NewRelationService creates a new RelationService. registry and bus may be
// nil; mutations then happen without live fan-out or bus events.
func NewRelationService(userRepo repositories.UserRepository, registry *notify.Registry, bus EventPublisher) *RelationService {
	return &RelationService{
		userRepo: userRepo,
		registry: registry,
		bus:      bus,
	}
}

// SendRequest creates the matched pending edge pair actor -> target.
func (s *RelationService) SendRequest(actor *models.User, targetID string) error {
	if actor.Bot {
		return models.ErrUnavailableForBots(actor.ID)
	}
	if targetID == actor.ID {
		return models.ErrInvalidUser(actor.ID, targetID, "cannot send a request to yourself")
	}

	target, err := s.userRepo.GetByID(targetID)
	if err != nil || target.Deleted || target.Bot {
		return models.ErrInvalidUser(actor.ID, targetID, "user isn't valid or is a bot")
	}
	if target.Blocked.Contains(actor.ID) {
		return models.ErrInvalidUser(actor.ID, targetID, "user blocked you")
	}
	if actor.Blocked.Contains(targetID) {
		return models.ErrInvalidUser(actor.ID, targetID, "you blocked this user yourself")
	}
	if actor.InAnyRelation(targetID) {
		return models.ErrInvalidUser(actor.ID, targetID, "user is in some relation with you already")
	}

	err = s.userRepo.ApplyBatch([]repositories.UserUpdate{
		{ID: actor.ID, Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldPendingsOutgoing, targetID),
		}},
		{ID: targetID, Mutations: []repositories.FieldMutation{
			repositories.Push(repositories.FieldPendingsIncoming, actor.ID),
		}},
	})
	if err != nil {
		return err
	}
	actor.PendingsOutgoing = actor.PendingsOutgoing.Add(targetID)

	s.notifyUser(targetID, notify.EventFriendRequest, actor.ID)
	s.publish("relation.request_sent", actor.ID, targetID)
	return nil
}

// RespondRequest resolves a pending request from requester to actor. The
// matched pending edge pair is always removed; confirm additionally creates
// the matched friendship edge pair in the same batch.
func (s *RelationService) RespondRequest(actor *models.User, requesterID string, confirm bool) error {
	if actor.Bot {
		return models.ErrUnavailableForBots(actor.ID)
	}
	if !actor.PendingsIncoming.Contains(requesterID) {
		return models.ErrUserNotInGroup(actor.ID, requesterID, "user isn't in incoming pendings")
	}

	updates := []repositories.UserUpdate{
		{ID: requesterID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldPendingsOutgoing, actor.ID),
		}},
		{ID: actor.ID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldPendingsIncoming, requesterID),
		}},
	}
	if confirm {
		updates[1].Mutations = append(updates[1].Mutations,
			repositories.Push(repositories.FieldFriends, requesterID))
		updates[0].Mutations = append(updates[0].Mutations,
			repositories.Push(repositories.FieldFriends, actor.ID))
	}

	if err := s.userRepo.ApplyBatch(updates); err != nil {
		return err
	}
	actor.PendingsIncoming = actor.PendingsIncoming.Remove(requesterID)

	if confirm {
		actor.Friends = actor.Friends.Add(requesterID)
		s.notifyUser(requesterID, notify.EventRequestAccepted, actor.ID)
		s.publish("relation.request_accepted", actor.ID, requesterID)
	} else {
		s.notifyUser(requesterID, notify.EventRequestDeclined, actor.ID)
		s.publish("relation.request_declined", actor.ID, requesterID)
	}
	return nil
}

// CancelRequest withdraws a pending request the actor sent earlier.
func (s *RelationService) CancelRequest(actor *models.User, targetID string) error {
	if actor.Bot {
		return models.ErrUnavailableForBots(actor.ID)
	}
	if !actor.PendingsOutgoing.Contains(targetID) {
		return models.ErrUserNotInGroup(actor.ID, targetID, "user isn't in outgoing pendings")
	}

	err := s.userRepo.ApplyBatch([]repositories.UserUpdate{
		{ID: actor.ID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldPendingsOutgoing, targetID),
		}},
		{ID: targetID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldPendingsIncoming, actor.ID),
		}},
	})
	if err != nil {
		return err
	}
	actor.PendingsOutgoing = actor.PendingsOutgoing.Remove(targetID)

	s.notifyUser(targetID, notify.EventRequestCancelled, actor.ID)
	s.publish("relation.request_cancelled", actor.ID, targetID)
	return nil
}

// RemoveFriend removes the matched friendship edge pair.
func (s *RelationService) RemoveFriend(actor *models.User, targetID string) error {
	if actor.Bot {
		return models.ErrUnavailableForBots(actor.ID)
	}
	if !actor.Friends.Contains(targetID) {
		return models.ErrUserNotInGroup(actor.ID, targetID, "user isn't a friend")
	}

	err := s.userRepo.ApplyBatch([]repositories.UserUpdate{
		{ID: actor.ID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldFriends, targetID),
		}},
		{ID: targetID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldFriends, actor.ID),
		}},
	})
	if err != nil {
		return err
	}
	actor.Friends = actor.Friends.Remove(targetID)

	s.notifyUser(targetID, notify.EventFriendRemoved, actor.ID)
	s.publish("relation.friend_removed", actor.ID, targetID)
	return nil
}

// Block adds target to the actor's blocked set. Blocking unilaterally
// supersedes any prior relation: existing pending or friendship edge pairs
// between the two are pulled in the same batch.
func (s *RelationService) Block(actor *models.User, targetID string) error {
	target, err := s.userRepo.GetByID(targetID)
	if err != nil || target.Deleted || target.Bot || targetID == actor.ID || actor.Blocked.Contains(targetID) {
		return models.ErrUserNotInGroup(actor.ID, targetID, "user is already blocked or invalid")
	}

	actorUpd := repositories.UserUpdate{ID: actor.ID, Mutations: []repositories.FieldMutation{
		repositories.Push(repositories.FieldBlocked, targetID),
	}}
	targetUpd := repositories.UserUpdate{ID: targetID}

	if actor.PendingsIncoming.Contains(targetID) {
		actorUpd.Mutations = append(actorUpd.Mutations,
			repositories.Pull(repositories.FieldPendingsIncoming, targetID))
		targetUpd.Mutations = append(targetUpd.Mutations,
			repositories.Pull(repositories.FieldPendingsOutgoing, actor.ID))
	}
	if actor.PendingsOutgoing.Contains(targetID) {
		actorUpd.Mutations = append(actorUpd.Mutations,
			repositories.Pull(repositories.FieldPendingsOutgoing, targetID))
		targetUpd.Mutations = append(targetUpd.Mutations,
			repositories.Pull(repositories.FieldPendingsIncoming, actor.ID))
	}
	if actor.Friends.Contains(targetID) {
		actorUpd.Mutations = append(actorUpd.Mutations,
			repositories.Pull(repositories.FieldFriends, targetID))
		targetUpd.Mutations = append(targetUpd.Mutations,
			repositories.Pull(repositories.FieldFriends, actor.ID))
	}

	updates := []repositories.UserUpdate{actorUpd}
	if len(targetUpd.Mutations) > 0 {
		updates = append(updates, targetUpd)
	}
	if err := s.userRepo.ApplyBatch(updates); err != nil {
		return err
	}

	actor.Blocked = actor.Blocked.Add(targetID)
	actor.PendingsIncoming = actor.PendingsIncoming.Remove(targetID)
	actor.PendingsOutgoing = actor.PendingsOutgoing.Remove(targetID)
	actor.Friends = actor.Friends.Remove(targetID)

	s.publish("relation.blocked", actor.ID, targetID)
	return nil
}

// Unblock removes target from the actor's blocked set.
func (s *RelationService) Unblock(actor *models.User, targetID string) error {
	if !actor.Blocked.Contains(targetID) {
		return models.ErrUserNotInGroup(actor.ID, targetID, "user isn't blocked")
	}

	err := s.userRepo.ApplyBatch([]repositories.UserUpdate{
		{ID: actor.ID, Mutations: []repositories.FieldMutation{
			repositories.Pull(repositories.FieldBlocked, targetID),
		}},
	})
	if err != nil {
		return err
	}
	actor.Blocked = actor.Blocked.Remove(targetID)

	s.publish("relation.unblocked", actor.ID, targetID)
	return nil
}

// ListFriends resolves the actor's friends to public profiles, ordered by
// nick descending. Bot actors always get an empty listing.
func (s *RelationService) ListFriends(actor *models.User) ([]models.PublicProfile, error) {
	if actor.Bot {
		return []models.PublicProfile{}, nil
	}

	users, err := s.userRepo.GetMany(actor.Friends)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Nick > users[j].Nick })

	out := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}

// ListBlocked resolves the actor's blocked set to public profiles.
func (s *RelationService) ListBlocked(actor *models.User) ([]models.PublicProfile, error) {
	users, err := s.userRepo.GetMany(actor.Blocked)
	if err != nil {
		return nil, err
	}

	out := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}

// notifyUser fans one event out to the user's live connections.
func (s *RelationService) notifyUser(userID, kind, from string) {
	if s.registry == nil {
		return
	}
	s.registry.Publish(userID, notify.Event{Kind: kind, From: from})
}

// publish sends a relation event to the bus. Failures are logged only.
func (s *RelationService) publish(event, actorID, targetID string) {
	if s.bus == nil {
		return
	}
	err := s.bus.PublishRelationEvent(map[string]interface{}{
		"event":  event,
		"actor":  actorID,
		"target": targetID,
	})
	if err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event, err)
	}
}
