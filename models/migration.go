package models

import (
	"log"

	"bitbucket.org/multycomm/collection_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CustomerRecord{}, &RecordChange{}, &RecordSequence{},
		&RecordEventRecord{},
		&Department{}, &RecordAssignment{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
