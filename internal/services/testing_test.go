package services

import (
	"context"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flashgen/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

// fakeCompleter returns a canned completion and records the messages it received.
type fakeCompleter struct {
	result   *Completion
	err      error
	received [][]Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message) (*Completion, error) {
	f.received = append(f.received, messages)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
