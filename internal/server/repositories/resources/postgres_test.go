package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
)

var pnrKey = models.ResourceKey{UserID: "u1", Type: common.ResourcePNR, ID: "2455423890"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT version, data, updated_at FROM resources WHERE user_id = \$1 AND type = \$2 AND id = \$3`).
		WithArgs("u1", "pnr", "2455423890").
		WillReturnRows(sqlmock.NewRows([]string{"version", "data", "updated_at"}).AddRow(3, []byte(`{"pnr":"2455423890"}`), at))

	res, err := repo.Get(context.Background(), pnrKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Version != 3 || string(res.Data) != `{"pnr":"2455423890"}` || !res.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected resource: %+v", res)
	}
	if res.ResourceKey != pnrKey {
		t.Fatalf("key not carried: %+v", res.ResourceKey)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT version, data, updated_at FROM resources`).
		WithArgs("u1", "pnr", "2455423890").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), pnrKey)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	q := regexp.MustCompile(`INSERT INTO resources .* ON CONFLICT \(user_id, type, id\) DO NOTHING\s+RETURNING version`)

	t.Run("inserted", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q.String()).
			WithArgs("u1", "pnr", "2455423890", `{"a":1}`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

		v, err := repo.Create(context.Background(), pnrKey, json.RawMessage(`{"a":1}`))
		if err != nil || v != 1 {
			t.Fatalf("got %d, %v", v, err)
		}
	})

	t.Run("exists", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q.String()).
			WithArgs("u1", "pnr", "2455423890", `{"a":1}`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		_, err := repo.Create(context.Background(), pnrKey, json.RawMessage(`{"a":1}`))
		if !errors.Is(err, common.ErrVersionConflict) {
			t.Fatalf("want ErrVersionConflict, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	q := regexp.MustCompile(`UPDATE resources SET version = version \+ 1, .* AND version = \$5\s+RETURNING version`)

	t.Run("matching version", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q.String()).
			WithArgs("u1", "pnr", "2455423890", `{"b":2}`, int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))

		v, err := repo.Update(context.Background(), pnrKey, json.RawMessage(`{"b":2}`), 4)
		if err != nil || v != 5 {
			t.Fatalf("got %d, %v", v, err)
		}
	})

	t.Run("stale version", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q.String()).
			WithArgs("u1", "pnr", "2455423890", `{"b":2}`, int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		_, err := repo.Update(context.Background(), pnrKey, json.RawMessage(`{"b":2}`), 2)
		if !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q.String()).WillReturnError(errors.New("db is down"))

		_, err := repo.Update(context.Background(), pnrKey, json.RawMessage(`{}`), 1)
		if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
			t.Fatalf("expected wrapped db error, got %v", err)
		}
	})
}

func TestUpsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO resources .* DO UPDATE SET version = resources\.version \+ 1`).
		WithArgs("u1", "preferences", "preferences", `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(7))

	key := models.ResourceKey{UserID: "u1", Type: common.ResourcePreferences, ID: common.ResourcePreferences}
	v, err := repo.Upsert(context.Background(), key, json.RawMessage(`{}`))
	if err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestDelete(t *testing.T) {
	q := `DELETE FROM resources WHERE user_id = \$1 AND type = \$2 AND id = \$3 AND \(\$4 < 0 OR version = \$4\)`

	tests := []struct {
		name     string
		expected int
		rows     int64
		want     error
	}{
		{name: "deleted", expected: 2, rows: 1},
		{name: "unconditional", expected: -1, rows: 1},
		{name: "missing or stale", expected: 2, rows: 0, want: common.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(q).
				WithArgs("u1", "pnr", "2455423890", int64(tt.expected)).
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			err := repo.Delete(context.Background(), pnrKey, tt.expected)
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDelete_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM resources`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	err := repo.Delete(context.Background(), pnrKey, 1)
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}
