package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	domain "github.com/bryanwahyu/petri/internal/domain/index"
)

func newMockStore(t *testing.T) (*IndexStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewIndexStore(db, ""), mock
}

var (
	selectValue   = regexp.QuoteMeta("SELECT value FROM petri_storage WHERE storage_key=?")
	selectVersion = regexp.QuoteMeta("SELECT version FROM petri_storage WHERE storage_key=?")
)

func TestGetWithoutRowIsEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectValue).
		WithArgs(domain.StorageKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPutThenGet(t *testing.T) {
	s, mock := newMockStore(t)
	records := []domain.Record{
		{Prompt: "b", RequestID: "id-b", Timestamp: 2},
		{Prompt: "a", RequestID: "id-a", Timestamp: 1},
	}
	data, err := domain.Encode(records)
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO petri_storage")).
		WithArgs(domain.StorageKey, string(data), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectValue).
		WithArgs(domain.StorageKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(string(data)))

	if err := s.Put(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != records[0] || got[1] != records[1] {
		t.Fatalf("got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetCorruptValue(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectValue).
		WithArgs(domain.StorageKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("{not json"))

	if _, err := s.Get(context.Background()); !errors.Is(err, domain.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFingerprintFollowsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectVersion).
		WithArgs(domain.StorageKey).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(selectVersion).
		WithArgs(domain.StorageKey).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))

	ctx := context.Background()
	if fp, err := s.Fingerprint(ctx); err != nil || fp != "0" {
		t.Fatalf("empty fingerprint = %q, %v", fp, err)
	}
	if fp, err := s.Fingerprint(ctx); err != nil || fp != "3" {
		t.Fatalf("fingerprint = %q, %v", fp, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS petri_storage")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
