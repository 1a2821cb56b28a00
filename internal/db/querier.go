package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier represents the minimal database operations used by services.
// Both *pgxpool.Pool and pgxmock pools satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrUnavailable = errors.New("postgres unavailable")

// Unavailable stands in for the pool when the process started without
// Postgres. Every call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrUnavailable
}

func (Unavailable) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrUnavailable
}

func (Unavailable) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return ErrUnavailable }
