package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/dbx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/repomanager"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/resources"
)

// NoPrecondition marks a write or delete without If-Match.
const NoPrecondition = -1

// ConflictError reports a precondition that did not match the stored
// version. Current is the stored state; Current.Version is 0 when the
// resource does not exist.
type ConflictError struct {
	Current models.Resource
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version %d", e.Current.Version)
}

func (e *ConflictError) Is(target error) bool { return target == common.ErrVersionConflict }

// UnitOfWork runs fn with a repository whose calls form one unit.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, repo resources.Repository) error) error
}

// PostgresUnitOfWork runs each unit in a database transaction.
type PostgresUnitOfWork struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPostgresUnitOfWork(db *sql.DB, m repomanager.RepositoryManager) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db, repomanager: m}
}

func (u *PostgresUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, repo resources.Repository) error) error {
	return dbx.WithTx(ctx, u.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, u.repomanager.Resources(tx))
	})
}

// DirectUnitOfWork hands out one repository without transactions.
type DirectUnitOfWork struct {
	Repo resources.Repository
}

func (u DirectUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, repo resources.Repository) error) error {
	return fn(ctx, u.Repo)
}

// ResourceService applies the optimistic concurrency rules of the sync API.
type ResourceService struct {
	uow UnitOfWork
}

func NewResourceService(uow UnitOfWork) *ResourceService {
	return &ResourceService{uow: uow}
}

func (s *ResourceService) Get(ctx context.Context, key models.ResourceKey) (models.Resource, error) {
	var res models.Resource
	err := s.uow.Run(ctx, func(ctx context.Context, repo resources.Repository) error {
		var err error
		res, err = repo.Get(ctx, key)
		return err
	})
	return res, err
}

// Create inserts a new resource at version 1. An existing resource is a
// conflict.
func (s *ResourceService) Create(ctx context.Context, key models.ResourceKey, data json.RawMessage) (int, error) {
	var version int
	err := s.uow.Run(ctx, func(ctx context.Context, repo resources.Repository) error {
		var err error
		version, err = repo.Create(ctx, key, data)
		if errors.Is(err, common.ErrVersionConflict) {
			return conflict(ctx, repo, key)
		}
		return err
	})
	return version, err
}

// Put writes data. ifMatch is the version the client based its change on:
// NoPrecondition writes unconditionally, 0 only succeeds when the resource
// does not exist yet.
func (s *ResourceService) Put(ctx context.Context, key models.ResourceKey, data json.RawMessage, ifMatch int) (int, error) {
	var version int
	err := s.uow.Run(ctx, func(ctx context.Context, repo resources.Repository) error {
		var err error
		switch {
		case ifMatch < 0:
			version, err = repo.Upsert(ctx, key, data)
			return err
		case ifMatch == 0:
			version, err = repo.Create(ctx, key, data)
			if errors.Is(err, common.ErrVersionConflict) {
				return conflict(ctx, repo, key)
			}
			return err
		default:
			version, err = repo.Update(ctx, key, data, ifMatch)
			if errors.Is(err, common.ErrNotFound) {
				return conflict(ctx, repo, key)
			}
			return err
		}
	})
	return version, err
}

// Delete removes the resource if its version matches ifMatch.
func (s *ResourceService) Delete(ctx context.Context, key models.ResourceKey, ifMatch int) error {
	return s.uow.Run(ctx, func(ctx context.Context, repo resources.Repository) error {
		err := repo.Delete(ctx, key, ifMatch)
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if _, getErr := repo.Get(ctx, key); errors.Is(getErr, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return conflict(ctx, repo, key)
	})
}

// conflict builds the ConflictError describing the stored state of key.
func conflict(ctx context.Context, repo resources.Repository, key models.ResourceKey) error {
	cur, err := repo.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return &ConflictError{Current: models.Resource{ResourceKey: key}}
	}
	if err != nil {
		return err
	}
	return &ConflictError{Current: cur}
}
