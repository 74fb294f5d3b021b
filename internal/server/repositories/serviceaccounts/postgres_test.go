package serviceaccounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+service_accounts\b.*RETURNING\s+id`

	mock.ExpectQuery(q).
		WithArgs("org1", "sync", []byte{0x01}, []byte{0x02}, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))

	got, err := repo.Create(context.Background(), &models.ServiceAccount{
		OrgID:      "org1",
		Name:       "sync",
		SecretHash: []byte{0x01},
		SecretSalt: []byte{0x02},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("id not assigned from insert: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+service_accounts\s+WHERE\s+id\s*=\s*\$1\s*$`
	cols := []string{"id", "org_id", "name", "secret_hash", "secret_salt", "expires_at", "token_version", "last_used", "created_at"}

	mock.ExpectQuery(q).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "org1", "sync", []byte{0x01}, []byte{0x02}, nil, 3, time.Now(), time.Now()))

	got, err := repo.GetByID(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrgID != "org1" || got.TokenVersion != 3 {
		t.Fatalf("unexpected row: %+v", got)
	}

	mock.ExpectQuery(q).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, common.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

// Revocation is a single atomic counter bump, not read-modify-write.
func TestBumpTokenVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^UPDATE\s+service_accounts\s+SET\s+token_version\s*=\s*token_version\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.BumpTokenVersion(context.Background(), "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(q).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.BumpTokenVersion(context.Background(), "missing"); !errors.Is(err, common.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+service_accounts\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTouch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE\s+service_accounts\s+SET\s+last_used\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Touch(context.Background(), "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
