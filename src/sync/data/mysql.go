package data

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/giveth/pledge-sync/src/sync/types"
)

func MustMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}

var allModels = []interface{}{
	&types.Donation{}, &types.DonationHistory{},
	&types.PledgeAdmin{}, &types.Milestone{},
}

func Migrate(db *gorm.DB) {
	err := db.AutoMigrate(allModels...)
	if err == nil {
		return
	}

	log.Printf("auto-migrate failed (%v) - dropping & recreating schema", err)
	_ = db.Migrator().DropTable(
		"donation_histories", "donations", "pledge_admins", "milestones",
	)
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatalf("migrate after drop: %v", err)
	}
}
