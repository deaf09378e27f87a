package offboarding

import "errors"

// エラー分類。個別のエラーはいずれかに errors.Is で一致します。
var (
	ErrScope             = errors.New("offboarding: scope error")
	ErrValidation        = errors.New("offboarding: validation error")
	ErrNotFound          = errors.New("offboarding: not found")
	ErrConflict          = errors.New("offboarding: conflict")
	ErrInvalidTransition = errors.New("offboarding: invalid transition")
)

var (
	ErrScopeMissing  = classified("offboarding: scope id is missing", ErrScope)
	ErrScopeMismatch = classified("offboarding: scope id does not match caller", ErrScope)

	ErrInvalidID             = classified("offboarding: invalid id", ErrValidation)
	ErrInvalidEmployeeID     = classified("offboarding: invalid employee id", ErrValidation)
	ErrInvalidLastDay        = classified("offboarding: last day must be a YYYY-MM-DD date", ErrValidation)
	ErrInvalidDueDate        = classified("offboarding: due date must be a YYYY-MM-DD date", ErrValidation)
	ErrInvalidTitle          = classified("offboarding: invalid task title", ErrValidation)
	ErrInvalidRole           = classified("offboarding: invalid role", ErrValidation)
	ErrBlockedReasonRequired = classified("offboarding: blocked reason is required", ErrValidation)

	ErrTemplateNotFound         = classified("offboarding: template not found", ErrNotFound)
	ErrDocumentTemplateNotFound = classified("offboarding: document template not found", ErrNotFound)
	ErrRunNotFound              = classified("offboarding: run not found", ErrNotFound)
	ErrTaskNotFound             = classified("offboarding: task not found", ErrNotFound)

	ErrActiveRunExists     = classified("offboarding: employee already has an active run", ErrConflict)
	ErrRequestKeyDuplicate = classified("offboarding: request key already used", ErrConflict)

	ErrRunTransition  = classified("offboarding: run status transition not allowed", ErrInvalidTransition)
	ErrTaskTransition = classified("offboarding: task status transition not allowed", ErrInvalidTransition)
)

// ErrPartialTaskCreation はタスクの一部が作成できなかったことを表します。
// 処理は継続されるため、結果の記録とログにのみ使われます。
var ErrPartialTaskCreation = errors.New("offboarding: some tasks could not be created")

type classifiedError struct {
	msg  string
	kind error
}

func classified(msg string, kind error) error {
	return &classifiedError{msg: msg, kind: kind}
}

func (e *classifiedError) Error() string {
	return e.msg
}

func (e *classifiedError) Unwrap() error {
	return e.kind
}
