package database

import "github.com/MuhammetEminGerim/autosniper/internal/models"

func (d *Database) RunMigrations() error {
	return d.db.AutoMigrate(
		&models.User{},
		&models.Filter{},
		&models.Listing{},
		&models.FilterListing{},
		&models.ScanJob{},
		&models.Favorite{},
		&models.Notification{},
	)
}
