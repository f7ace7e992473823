// Package testutil holds sqlite-backed fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/repairhub-backend/pkg/db"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

var dbSeq atomic.Int64

// OpenDB returns a migrated in-memory sqlite database private to the test.
// The pool is pinned to one connection so concurrent transactions serialize.
func OpenDB(t *testing.T) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, dbSeq.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db.NewFromConn(conn)
}

// SeedUser inserts a directory user with the given role.
func SeedUser(t *testing.T, client *db.Client, role enums.Role, branchID *uuid.UUID) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:       id,
		Email:    id.String() + "@repairhub.test",
		FullName: string(role) + " user",
		Role:     role,
		BranchID: branchID,
		IsActive: true,
	}
	if err := client.DB().Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

var orderSeq atomic.Int64

// SeedOrder inserts a repair order directly in the given status, bypassing the
// state machine. A technician is attached when the status requires one.
func SeedOrder(t *testing.T, client *db.Client, branchID uuid.UUID, status enums.RepairOrderStatus, technicianID *uuid.UUID) models.RepairOrder {
	t.Helper()
	if status.RequiresTechnician() && technicianID == nil {
		tech := uuid.New()
		technicianID = &tech
	}
	if !status.RequiresTechnician() {
		technicianID = nil
	}
	order := models.RepairOrder{
		ID:                 uuid.New(),
		OrderNo:            fmt.Sprintf("RO-TEST-%06d", orderSeq.Add(1)),
		CustomerName:       "Ada Customer",
		CustomerContact:    "+1-555-0100",
		DeviceModel:        "Pixel 9",
		ProblemDescription: "cracked screen",
		BranchID:           branchID,
		TechnicianID:       technicianID,
		Status:             status,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
	if err := client.DB().Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// ReloadOrder reads an order back from storage.
func ReloadOrder(t *testing.T, client *db.Client, id uuid.UUID) models.RepairOrder {
	t.Helper()
	var order models.RepairOrder
	if err := client.DB().WithContext(context.Background()).First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}
