package storage

import (
	"context"
	"database/sql"

	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (Result, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

type Row interface {
	Scan(dest ...any) error
}

type Result interface {
	// RowsAffected returns the number of rows affected by an
	// update, insert, or delete. Not every database or database
	// driver may support this.
	RowsAffected() (int64, error)
}

type CreateTxOption func(*sql.TxOptions)

func TxOptionWithWrite(write bool) CreateTxOption {
	return func(option *sql.TxOptions) {
		option.ReadOnly = !write
	}
}

func TxOptionWithIsolationLevel(level sql.IsolationLevel) CreateTxOption {
	return func(option *sql.TxOptions) {
		option.Isolation = level
	}
}

type ListIssuedCertsRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	IDs           []string `json:"ids"`            // Filter by issuance ID.
	SerialNumbers []string `json:"serial_numbers"` // Filter by leaf certificate serial number.
}

type ListIssuedCertsResponse struct {
	Total int64              `json:"total"`
	Certs []model.IssuedCert `json:"certs"`
}

// IssuanceStorage is the audit log of leaf issuances. The CA itself keeps
// no state between restarts; this log only records what was handed out.
type IssuanceStorage interface {
	CreateTx(ctx context.Context, options ...CreateTxOption) (Tx, context.Context, error)
	AddIssuedCert(ctx context.Context, tx Tx, cert model.IssuedCert) error
	ListIssuedCerts(ctx context.Context, tx Tx, req ListIssuedCertsRequest) (ListIssuedCertsResponse, error)
}
