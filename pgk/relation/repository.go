package relation

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saveblush/reraw-timeline/models"
)

// Repository repository interface
type Repository interface {
	FindByOwner(db *gorm.DB, ownerID uint64) ([]*models.Relation, error)
	Insert(db *gorm.DB, req *models.Relation) error
	Delete(db *gorm.DB, req *models.Relation) error
	ReplaceKind(db *gorm.DB, ownerID uint64, kind string, targetIDs []uint64) error
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) FindByOwner(db *gorm.DB, ownerID uint64) ([]*models.Relation, error) {
	entities := []*models.Relation{}
	err := db.Where("owner_id = ?", ownerID).Order("kind, target_id").Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return entities, nil
}

func (r *repository) Insert(db *gorm.DB, req *models.Relation) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(req).Error
	if err != nil {
		return err
	}

	return nil
}

func (r *repository) Delete(db *gorm.DB, req *models.Relation) error {
	err := db.Where("owner_id = ? AND kind = ? AND target_id = ?", req.OwnerID, req.Kind, req.TargetID).
		Delete(&models.Relation{}).Error
	if err != nil {
		return err
	}

	return nil
}

func (r *repository) ReplaceKind(db *gorm.DB, ownerID uint64, kind string, targetIDs []uint64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("owner_id = ? AND kind = ?", ownerID, kind).Delete(&models.Relation{}).Error
		if err != nil {
			return err
		}
		if len(targetIDs) == 0 {
			return nil
		}

		rows := make([]*models.Relation, 0, len(targetIDs))
		for _, id := range targetIDs {
			rows = append(rows, &models.Relation{OwnerID: ownerID, Kind: kind, TargetID: id})
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500).Error
	})
}
