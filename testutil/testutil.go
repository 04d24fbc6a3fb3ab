// Package testutil holds helpers shared by package tests: an in-memory database,
// seeded marketplace users and products, and a fake authenticated gin context.
package testutil

import (
	"os"
	"testing"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test. Current GO_ENV=%q.", env)
	}
}

// NewTestDB opens a migrated in-memory SQLite database.
// The pool is limited to one connection so every query and transaction sees the same memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser inserts a user with the given Auth0 id and role
func CreateUser(t *testing.T, db *gorm.DB, auth0ID, role string) models.User {
	t.Helper()

	user := models.User{
		Auth0ID: auth0ID,
		Name:    "User " + auth0ID,
		Email:   auth0ID + "@example.com",
		Role:    role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

// CreateProduct inserts a listed product owned by farmerID
func CreateProduct(t *testing.T, db *gorm.DB, farmerID uint, price string, stock int) models.Product {
	t.Helper()

	product := models.Product{
		FarmerID: farmerID,
		Name:     "Organic tomatoes",
		Unit:     "kg",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Listed:   true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return product
}

// ReloadUser reads the user back from the database
func ReloadUser(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("Failed to reload user %d: %v", id, err)
	}
	return user
}

// ConsumerDetails returns a complete delivery snapshot
func ConsumerDetails() models.ConsumerDetails {
	return models.ConsumerDetails{
		FullName: "Asha Patel",
		Phone:    "+91-9000000000",
		Address:  "12 Market Road, Pune",
	}
}
