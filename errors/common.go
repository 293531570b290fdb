package errors

import "fmt"

func InvalidParamsErr(err error) error {
	return E(Invalid, "invalid params", err)
}

func ValidationFailedErr(err error) error {
	return E(Invalid, "validation failed", err)
}

func EmptyParamErr(field string) error {
	ve := ValidationErrs()
	ve.Add(field, "cannot be empty")
	return E(Invalid, "validation failed", ve.Err())
}

// TxNotFoundErr returns a formated error for a missing transaction
func TxNotFoundErr(transactionID string) error {
	return E(NotFound, fmt.Sprintf("transaction %s not found", transactionID), nil)
}

// VersionConflictErr returns a formated error for a lost conditional write
func VersionConflictErr(transactionID string, version int64) error {
	return E(Conflict, fmt.Sprintf("transaction %s changed concurrently at version %d", transactionID, version), nil)
}
