package tab

import (
	"errors"
	"fmt"

	"github.com/saveblush/reraw-timeline/pgk/filters"
	"github.com/saveblush/reraw-timeline/pgk/relation"
)

// ErrUnknownPreset preset name is not defined
var ErrUnknownPreset = errors.New("tab: unknown preset")

const (
	PresetHome      = "home"
	PresetMine      = "mine"
	PresetReplies   = "replies"
	PresetFollowers = "followers"
	PresetAll       = "all"
)

// Preset build the filter expression of a named preset for identity
func Preset(name string, graph *relation.Graph, identity uint64) (filters.Expr, error) {
	if name == PresetAll {
		return filters.All(), nil
	}

	blockings, err := filters.Bind(graph, identity, filters.FieldBlockings)
	if err != nil {
		return nil, err
	}
	notBlocked := filters.Not(filters.UserIn(blockings))

	user, err := filters.Bind(graph, identity, filters.FieldUser)
	if err != nil {
		return nil, err
	}

	switch name {
	case PresetHome:
		followings, err := filters.Bind(graph, identity, filters.FieldFollowings)
		if err != nil {
			return nil, err
		}
		return filters.And(filters.Or(filters.UserIn(user), filters.UserIn(followings)), notBlocked), nil
	case PresetMine:
		return filters.UserIs(user), nil
	case PresetReplies:
		return filters.And(filters.ReplyToIn(user), notBlocked), nil
	case PresetFollowers:
		followers, err := filters.Bind(graph, identity, filters.FieldFollowers)
		if err != nil {
			return nil, err
		}
		return filters.And(filters.UserIn(followers), notBlocked), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
}
