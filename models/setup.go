package models

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Database wraps the gorm connection and carries every query the backend
// issues. It is constructed once in main and injected into controllers and
// services.
type Database struct {
	GormDB *gorm.DB
}

func ConnectDatabase(databaseUrl string) (*Database, error) {
	gdb, err := gorm.Open(postgres.Open(databaseUrl), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	database := &Database{GormDB: gdb}
	if err := database.Migrate(); err != nil {
		return nil, err
	}
	return database, nil
}

func (db *Database) Migrate() error {
	err := db.GormDB.AutoMigrate(&User{}, &Repository{}, &EnvVar{}, &Deployment{}, &GithubAppInstallation{})
	if err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (e *EnvVar) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (d *Deployment) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
