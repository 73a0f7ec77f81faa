package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (Complaint{}).TableName() != "complaints" {
		t.Fatalf("Complaint.TableName() = %q; want %q", (Complaint{}).TableName(), "complaints")
	}
	if (Comment{}).TableName() != "comments" {
		t.Fatalf("Comment.TableName() = %q; want %q", (Comment{}).TableName(), "comments")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestMigrations_Index_AndCascade(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Complaint{}, &Comment{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&Complaint{}, &Comment{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Comment{}, "idx_complaint_comments") {
		t.Fatalf("expected index idx_complaint_comments on comments")
	}

	now := time.Now().UTC()
	c := &Complaint{
		ID: "c1", Title: "Leaky faucet", Description: "Kitchen", Category: "Maintenance",
		Priority: "Low", Status: DefaultStatus, CreatedAt: now, UpdatedAt: now, CreatedBy: "alice",
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert complaint: %v", err)
	}
	for i, id := range []string{"m1", "m2"} {
		cm := &Comment{ID: id, ComplaintID: "c1", Position: i, Text: "t", Author: "bob", CreatedAt: now}
		if err := db.Create(cm).Error; err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	// Orphans are rejected.
	orphan := &Comment{ID: "mx", ComplaintID: "missing", Text: "t", Author: "bob", CreatedAt: now}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("expected FK violation for orphan comment")
	}

	// CASCADE: deleting the complaint deletes its comments.
	if err := db.Delete(&Complaint{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete complaint: %v", err)
	}
	var cnt int64
	if err := db.Model(&Comment{}).Where("complaint_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count comments: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected comments to cascade-delete, got count=%d", cnt)
	}
}

func TestComplaint_Touch_NeverMovesBackwards(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Complaint{CreatedAt: base, UpdatedAt: base}

	c.Touch(base.Add(time.Minute))
	if !c.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("Touch forward: got %v", c.UpdatedAt)
	}
	c.Touch(base) // clock skew
	if !c.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("Touch must not go backwards: got %v", c.UpdatedAt)
	}
}

func TestComment_JSON_HidesBookkeeping(t *testing.T) {
	cm := Comment{ID: "m1", ComplaintID: "c1", Position: 3, Text: "hi", Author: "bob", CreatedAt: time.Unix(0, 0).UTC()}
	raw, err := json.Marshal(cm)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"id":"m1"`, `"text":"hi"`, `"author":"bob"`, `"createdAt"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	for _, hidden := range []string{"complaint", "osition", "c1"} {
		if strings.Contains(s, hidden) {
			t.Fatalf("unexpected %q in %s", hidden, s)
		}
	}
}

func TestListFilter_IsZero(t *testing.T) {
	if !(ListFilter{}).IsZero() {
		t.Fatalf("empty filter should be zero")
	}
	if !(ListFilter{Category: "  "}).IsZero() {
		t.Fatalf("blank filter should be zero")
	}
	if (ListFilter{Search: "refund"}).IsZero() {
		t.Fatalf("search filter should not be zero")
	}
}
