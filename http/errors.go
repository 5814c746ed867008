package http

import "github.com/programme-lv/evalboard/srvcerror"

const ErrCodeInvalidRequestBody = "invalid_request_body"

func ErrInvalidRequestBody() *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeInvalidRequestBody,
		"The request body is not valid JSON",
	)
}
