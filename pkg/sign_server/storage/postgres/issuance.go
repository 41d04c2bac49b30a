package postgres

import (
	"context"

	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
)

func (s *_Storage) AddIssuedCert(ctx context.Context, tx storage.Tx, cert model.IssuedCert) error {
	query := `
INSERT INTO issued_cert (id, serial_number, created_at, not_after, cert)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := tx.Exec(
		ctx,
		query,
		cert.ID,
		cert.SerialNumber,
		cert.CreatedAt,
		cert.ExpiresAt,
		cert,
	)
	if err != nil {
		return err
	}
	return nil
}

func (s *_Storage) ListIssuedCerts(ctx context.Context, tx storage.Tx, req storage.ListIssuedCertsRequest) (storage.ListIssuedCertsResponse, error) {
	query := `
WITH filtered AS (
	SELECT rec_id, "cert" FROM "issued_cert"
	WHERE
		(COALESCE(ARRAY_LENGTH($3::TEXT[], 1), 0) = 0 OR id = ANY($3)) AND
		(COALESCE(ARRAY_LENGTH($4::TEXT[], 1), 0) = 0 OR serial_number = ANY($4))
)
, paged AS (
	SELECT "cert" FROM filtered
	ORDER BY rec_id ASC
	OFFSET $1 LIMIT $2
)
, total AS (
	SELECT COUNT(*) AS total FROM filtered
)
SELECT total, "cert" FROM paged FULL JOIN total ON FALSE
`
	rows, err := tx.Query(
		ctx,
		query,
		req.Offset,
		req.Limit,
		req.IDs,
		req.SerialNumbers,
	)
	if err != nil {
		return storage.ListIssuedCertsResponse{}, err
	}
	defer rows.Close()

	result := storage.ListIssuedCertsResponse{}
	for rows.Next() {
		var total *int64
		var cert *model.IssuedCert
		if err := rows.Scan(&total, &cert); err != nil {
			return storage.ListIssuedCertsResponse{}, err
		}
		if total != nil {
			result.Total = *total
		}
		if cert != nil {
			result.Certs = append(result.Certs, *cert)
		}
	}
	if err := rows.Err(); err != nil {
		return storage.ListIssuedCertsResponse{}, err
	}

	return result, nil
}
