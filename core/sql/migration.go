package sql

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/saveblush/reraw-timeline/core/generic"
	"github.com/saveblush/reraw-timeline/core/utils"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
)

func createDatabase(cf *Configuration) error {
	dsn := fmt.Sprintf("user=%s password=%s host=%s port=%d sslmode=disable TimeZone=%s",
		cf.Username,
		cf.Password,
		cf.Host,
		cf.Port,
		utils.TimeZone(),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}
	defer CloseConnection(db)

	var exc string
	sql := "SELECT 'CREATE DATABASE " + cf.DatabaseName + "' WHERE NOT EXISTS (SELECT 1 FROM pg_database WHERE datname = ?)"
	err = db.Raw(sql, cf.DatabaseName).Scan(&exc).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Log.Errorf("check already database error: %s", err)
	}
	if !generic.IsEmpty(exc) {
		err := db.Exec(exc).Error
		if err != nil {
			logger.Log.Errorf("create database error: %s", err)
			return err
		}
	}

	return nil
}

// Migration create tables statuses and relations
func Migration(db *gorm.DB) error {
	var sqls []string
	sqls = append(sqls, `
		CREATE TABLE IF NOT EXISTS statuses (
			id bigint NOT NULL PRIMARY KEY,
			created_at bigint NOT NULL,
			user_id bigint NOT NULL,
			in_reply_to_user_id bigint NOT NULL DEFAULT 0,
			text text NOT NULL DEFAULT '',
			source varchar(255) NOT NULL DEFAULT ''
		);
	`)

	sqls = append(sqls, `
		CREATE TABLE IF NOT EXISTS relations (
			owner_id bigint NOT NULL,
			target_id bigint NOT NULL,
			kind varchar(16) NOT NULL,
			PRIMARY KEY (owner_id, kind, target_id)
		);
	`)

	// index statuses
	sqls = append(sqls, `CREATE INDEX IF NOT EXISTS idx_statuses_created_at ON statuses (created_at DESC, id DESC);`)
	sqls = append(sqls, `CREATE INDEX IF NOT EXISTS idx_statuses_user_id ON statuses (user_id);`)
	sqls = append(sqls, `CREATE INDEX IF NOT EXISTS idx_statuses_in_reply_to_user_id ON statuses (in_reply_to_user_id);`)

	// index relations
	sqls = append(sqls, `CREATE INDEX IF NOT EXISTS idx_relations_target_id ON relations (target_id);`)

	for _, sql := range sqls {
		err := db.Exec(sql).Error
		if err != nil {
			logger.Log.Errorf("db migration error: %s", err)
			return err
		}
	}

	return nil
}
