package auth

import (
	"net/http"

	"github.com/programme-lv/evalboard/srvcerror"
)

const ErrCodeJwtTokenMissing = "jwt_token_missing"

func ErrJwtTokenMissing() *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeJwtTokenMissing,
		"Please log in to continue",
	).SetHttpStatusCode(http.StatusUnauthorized)
}

const ErrCodeInvalidToken = "invalid_token"

func ErrInvalidToken() *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeInvalidToken,
		"The session token is invalid or expired",
	).SetHttpStatusCode(http.StatusUnauthorized)
}
