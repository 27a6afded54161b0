package eventstore

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saveblush/reraw-timeline/core/generic"
	"github.com/saveblush/reraw-timeline/models"
)

// repository interface
type Repository interface {
	FindAll(db *gorm.DB, req *Request) ([]*models.Status, error)
	FindByID(db *gorm.DB, ID uint64) (*models.Status, error)
	Insert(db *gorm.DB, req *models.Status) error
	Delete(db *gorm.DB, ID uint64) error
	DeleteOlder(db *gorm.DB, before models.Timestamp) (int64, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) query(req *Request) (string, []any) {
	var conditions []string
	var params []any

	if req.MaxID != nil {
		// older than the status with MaxID in (created_at desc, id desc) order
		conditions = append(conditions, `(created_at, id) < (SELECT created_at, id FROM `+models.Status{}.TableName()+` WHERE id = ?)`)
		params = append(params, *req.MaxID)
	}

	if !generic.IsEmpty(req.Where) {
		conditions = append(conditions, `(`+req.Where+`)`)
	}

	if len(conditions) == 0 {
		conditions = append(conditions, `1 = 1`)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	params = append(params, limit)

	sql := `SELECT id, created_at, user_id, in_reply_to_user_id, text, source
			FROM ` + models.Status{}.TableName() + `
			WHERE ` + strings.Join(conditions, " AND ") + `
			ORDER BY created_at DESC, id DESC LIMIT ?`

	return sql, params
}

func (r *repository) FindAll(db *gorm.DB, req *Request) ([]*models.Status, error) {
	sql, params := r.query(req)

	entities := []*models.Status{}
	err := db.Raw(sql, params...).Scan(&entities).Error
	if err != nil {
		return nil, err
	}

	return entities, nil
}

func (r *repository) FindByID(db *gorm.DB, ID uint64) (*models.Status, error) {
	entities := &models.Status{}
	err := db.Limit(1).Where("id = ?", ID).Find(entities).Error
	if err != nil {
		return nil, err
	}

	return entities, nil
}

func (r *repository) Insert(db *gorm.DB, req *models.Status) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(req).Error
	if err != nil {
		return err
	}

	return nil
}

func (r *repository) Delete(db *gorm.DB, ID uint64) error {
	err := db.Where("id = ?", ID).Delete(&models.Status{}).Error
	if err != nil {
		return err
	}

	return nil
}

func (r *repository) DeleteOlder(db *gorm.DB, before models.Timestamp) (int64, error) {
	query := db.Where("created_at < ?", before).Delete(&models.Status{})
	if query.Error != nil {
		return 0, query.Error
	}

	return query.RowsAffected, nil
}
