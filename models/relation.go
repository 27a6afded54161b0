package models

// RelationChangeKind which part of the relation graph changed
type RelationChangeKind int

const (
	// RelationNone unspecified change, reapply everything
	RelationNone RelationChangeKind = iota
	RelationFollowing
	RelationFollower
	RelationBlocking
	RelationExplicitSet
)

func (k RelationChangeKind) String() string {
	switch k {
	case RelationFollowing:
		return "following"
	case RelationFollower:
		return "follower"
	case RelationBlocking:
		return "blocking"
	case RelationExplicitSet:
		return "user"
	default:
		return "none"
	}
}

// Relation stored relation row
type Relation struct {
	OwnerID  uint64 `json:"owner_id" gorm:"primaryKey;autoIncrement:false"`
	Kind     string `json:"kind" gorm:"primaryKey;type:varchar(16)"`
	TargetID uint64 `json:"target_id" gorm:"primaryKey;autoIncrement:false"`
}

func (Relation) TableName() string {
	return "relations"
}

// RelationChange one relation edge added or removed for an owner
type RelationChange struct {
	OwnerID  uint64
	TargetID uint64
	Kind     RelationChangeKind
	Removed  bool
}

// Row stored form of the change
func (c *RelationChange) Row() *Relation {
	return &Relation{OwnerID: c.OwnerID, Kind: c.Kind.String(), TargetID: c.TargetID}
}
