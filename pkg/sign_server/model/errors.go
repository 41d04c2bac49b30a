package model

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidParameter = errors.New("invalid parameter") // Base error for malformed input.
var ErrUnauthorized = errors.New("unauthorized")
var ErrSignerMaterial = errors.New("signer material unavailable") // Base error for missing or malformed local certificate/key files.
var ErrEngineFault = errors.New("manifest engine fault")          // Base error for native manifest engine failures.

var ErrMalformedCSR = fmt.Errorf("malformed certificate signing request %w", ErrInvalidParameter)

func ErrToHttpStatus(err error) int {
	if errors.Is(err, ErrInvalidParameter) {
		return http.StatusBadRequest
	} else if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}

	return http.StatusInternalServerError
}
