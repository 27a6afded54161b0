package stream

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/saveblush/reraw-timeline/core/generic"
	"github.com/saveblush/reraw-timeline/models"
)

// ErrInvalidFrame frame is not a json object or misses required fields
var ErrInvalidFrame = errors.New("stream: invalid frame")

// FrameKind kind of stream frame
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameStatus
	FrameDelete
	FrameRelation
	FrameFriends
)

func (k FrameKind) String() string {
	switch k {
	case FrameStatus:
		return "status"
	case FrameDelete:
		return "delete"
	case FrameRelation:
		return "relation"
	case FrameFriends:
		return "friends"
	default:
		return "unknown"
	}
}

// Frame classified stream message
type Frame struct {
	Kind     FrameKind
	Status   *models.Status
	StatusID uint64
	Changes  []*models.RelationChange
	Friends  []uint64
}

type wireStatus struct {
	ID        uint64 `json:"id"`
	CreatedAt int64  `json:"created_at"`
	User      struct {
		ID uint64 `json:"id"`
	} `json:"user"`
	InReplyToUserID uint64 `json:"in_reply_to_user_id"`
	Text            string `json:"text"`
	Source          string `json:"source"`
}

// Parse classify msg as seen by identity
func Parse(msg []byte, identity uint64) (*Frame, error) {
	if !gjson.ValidBytes(msg) {
		return nil, ErrInvalidFrame
	}
	root := gjson.ParseBytes(msg)
	if !root.IsObject() {
		return nil, ErrInvalidFrame
	}

	if del := root.Get("delete.status.id"); del.Exists() {
		id := del.Uint()
		if id == 0 {
			return nil, fmt.Errorf("%w: delete without status id", ErrInvalidFrame)
		}
		return &Frame{Kind: FrameDelete, StatusID: id}, nil
	}

	if friends := root.Get("friends"); friends.IsArray() {
		ids := []uint64{}
		for _, v := range friends.Array() {
			if id := v.Uint(); id != 0 {
				ids = append(ids, id)
			}
		}
		return &Frame{Kind: FrameFriends, Friends: generic.Unique(ids)}, nil
	}

	if event := root.Get("event"); event.Exists() {
		return parseRelation(root, event.String(), identity), nil
	}

	if root.Get("id").Exists() && root.Get("created_at").Exists() {
		var w wireStatus
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
		return &Frame{
			Kind: FrameStatus,
			Status: &models.Status{
				ID:              w.ID,
				CreatedAt:       models.Timestamp(w.CreatedAt),
				UserID:          w.User.ID,
				InReplyToUserID: w.InReplyToUserID,
				Text:            w.Text,
				Source:          w.Source,
			},
			StatusID: w.ID,
		}, nil
	}

	return &Frame{Kind: FrameUnknown}, nil
}

// parseRelation map a follow/block event onto identity's relation sets
func parseRelation(root gjson.Result, event string, identity uint64) *Frame {
	source := root.Get("source.id").Uint()
	target := root.Get("target.id").Uint()

	var removed bool
	var kind models.RelationChangeKind
	switch event {
	case "follow":
		kind = models.RelationFollowing
	case "unfollow":
		kind, removed = models.RelationFollowing, true
	case "block":
		kind = models.RelationBlocking
	case "unblock":
		kind, removed = models.RelationBlocking, true
	default:
		return &Frame{Kind: FrameUnknown}
	}

	frame := &Frame{Kind: FrameRelation}
	if identity == 0 || source == 0 || target == 0 {
		return frame
	}

	if source == identity {
		frame.Changes = append(frame.Changes, &models.RelationChange{
			OwnerID: identity, TargetID: target, Kind: kind, Removed: removed,
		})
	}
	// being followed by someone else makes them a follower
	if target == identity && kind == models.RelationFollowing {
		frame.Changes = append(frame.Changes, &models.RelationChange{
			OwnerID: identity, TargetID: source, Kind: models.RelationFollower, Removed: removed,
		})
	}

	return frame
}
