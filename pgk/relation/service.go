package relation

import (
	"fmt"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/models"
)

// Service service interface
type Service interface {
	Sync(c *cctx.Context, identity uint64) error
	SyncAll(c *cctx.Context) error
	Apply(c *cctx.Context, change *models.RelationChange) error
	ReplaceFollowings(c *cctx.Context, identity uint64, targetIDs []uint64) error
}

type service struct {
	graph      *Graph
	repository Repository
}

func NewService(graph *Graph) Service {
	return &service{
		graph:      graph,
		repository: NewRepository(),
	}
}

// Sync reload relations of identity from the database,
// only the sets whose content changed are broadcast
func (s *service) Sync(c *cctx.Context, identity uint64) error {
	snap, err := s.graph.SnapshotFor(identity)
	if err != nil {
		return err
	}

	fetch, err := s.repository.FindByOwner(c.GetDatabase(), identity)
	if err != nil {
		logger.Log.Errorf("find relations error: %s", err)
		return err
	}

	sets := groupByKind(fetch)
	users := sets[models.RelationExplicitSet.String()]
	if identity != 0 {
		users = append(users, identity)
	}
	snap.SetUsers(users)
	snap.SetFollowings(sets[models.RelationFollowing.String()])
	snap.SetFollowers(sets[models.RelationFollower.String()])
	snap.SetBlockings(sets[models.RelationBlocking.String()])

	return nil
}

// SyncAll sync every registered identity
func (s *service) SyncAll(c *cctx.Context) error {
	for _, identity := range s.graph.Identities() {
		err := s.Sync(c, identity)
		if err != nil {
			logger.Log.Errorf("sync relations [identity: %d] error: %s", identity, err)
			return err
		}
	}

	return nil
}

func groupByKind(rows []*models.Relation) map[string][]uint64 {
	sets := make(map[string][]uint64)
	for _, v := range rows {
		sets[v.Kind] = append(sets[v.Kind], v.TargetID)
	}

	return sets
}

// Apply mutate the owner's snapshot then persist the edge.
// The snapshot keeps the change even when the database write fails.
func (s *service) Apply(c *cctx.Context, change *models.RelationChange) error {
	snap, err := s.graph.SnapshotFor(change.OwnerID)
	if err != nil {
		return err
	}
	if change.TargetID > models.MaxID {
		return fmt.Errorf("apply relation [target: %d]: %w", change.TargetID, ErrIDOutOfRange)
	}

	switch change.Kind {
	case models.RelationFollowing:
		if change.Removed {
			snap.RemoveFollowings(change.TargetID)
		} else {
			snap.AddFollowings(change.TargetID)
		}
	case models.RelationFollower:
		if change.Removed {
			snap.RemoveFollowers(change.TargetID)
		} else {
			snap.AddFollowers(change.TargetID)
		}
	case models.RelationBlocking:
		if change.Removed {
			snap.RemoveBlockings(change.TargetID)
		} else {
			snap.AddBlockings(change.TargetID)
		}
	case models.RelationExplicitSet:
		if change.Removed {
			snap.RemoveUsers(change.TargetID)
		} else {
			snap.AddUsers(change.TargetID)
		}
	default:
		return fmt.Errorf("apply relation change: unknown kind %d", change.Kind)
	}

	if change.Removed {
		err = s.repository.Delete(c.GetDatabase(), change.Row())
	} else {
		err = s.repository.Insert(c.GetDatabase(), change.Row())
	}
	if err != nil {
		logger.Log.Errorf("save relation [%d %s %d] error: %s", change.OwnerID, change.Kind, change.TargetID, err)
		return err
	}

	return nil
}

// ReplaceFollowings replace every following of identity
func (s *service) ReplaceFollowings(c *cctx.Context, identity uint64, targetIDs []uint64) error {
	snap, err := s.graph.SnapshotFor(identity)
	if err != nil {
		return err
	}
	for _, id := range targetIDs {
		if id > models.MaxID {
			return fmt.Errorf("replace followings [target: %d]: %w", id, ErrIDOutOfRange)
		}
	}
	snap.SetFollowings(targetIDs)

	err = s.repository.ReplaceKind(c.GetDatabase(), identity, models.RelationFollowing.String(), targetIDs)
	if err != nil {
		logger.Log.Errorf("replace followings [identity: %d] error: %s", identity, err)
		return err
	}

	return nil
}
