package votesrvc

import (
	"fmt"
	"net/http"

	"github.com/programme-lv/evalboard/srvcerror"
)

const ErrCodeAlreadyVoted = "already_voted"

func ErrAlreadyVoted(model, revision string) *srvcerror.Error {
	return srvcerror.Consistency(
		ErrCodeAlreadyVoted,
		fmt.Sprintf("Vote already recorded for %s at revision %s", model, revision),
	)
}

const ErrCodeInvalidVoteType = "invalid_vote_type"

func ErrInvalidVoteType(voteType string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeInvalidVoteType,
		fmt.Sprintf("Invalid vote type %q, expected \"up\" or \"down\"", voteType),
	)
}

const ErrCodeMissingVoteField = "missing_field"

func ErrMissingVoteField(field string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeMissingVoteField,
		fmt.Sprintf("Missing required field: %s", field),
	)
}

const ErrCodeModelNotFound = "model_not_found"

func ErrModelNotFound(model string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeModelNotFound,
		fmt.Sprintf("Model %s was not found on the registry", model),
	).SetClass(srvcerror.ClassValidation).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeLedgerWrite = "vote_not_recorded"

func ErrLedgerWrite() *srvcerror.Error {
	return srvcerror.Transient(
		ErrCodeLedgerWrite,
		"The vote could not be recorded, please try again",
	)
}

const ErrCodeLedgerNotReady = "ledger_not_ready"

func ErrLedgerNotReady() *srvcerror.Error {
	return srvcerror.Transient(
		ErrCodeLedgerNotReady,
		"Votes are not available yet, please try again",
	)
}
