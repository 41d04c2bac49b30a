package cert_authority

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
)

func ValidateIssueCertificateRequest(req IssueCertificateRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.CSR, validation.Required),
	); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), model.ErrInvalidParameter)
	}

	return nil
}

func ValidateListIssuedCertsRequest(req storage.ListIssuedCertsRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Offset, validation.Min(0)),
		validation.Field(&req.Limit, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), model.ErrInvalidParameter)
	}

	return nil
}
