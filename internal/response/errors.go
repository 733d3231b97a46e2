package response

// ErrCode is a typed error code enum for consistent API error identification.
// Every code doubles as the message ID in the i18n locale files.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"
	ErrInsufficientScope   ErrCode = "INSUFFICIENT_SCOPE"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidFilter  ErrCode = "INVALID_FILTER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrTemplateNotFound         ErrCode = "TEMPLATE_NOT_FOUND"
	ErrInsufficientQuestionBank ErrCode = "INSUFFICIENT_QUESTION_BANK"
	ErrSessionNotFound          ErrCode = "SESSION_NOT_FOUND"
	ErrNotSessionOwner          ErrCode = "NOT_SESSION_OWNER"
	ErrSessionTerminated        ErrCode = "SESSION_TERMINATED"
	ErrSessionNotInProgress     ErrCode = "SESSION_NOT_IN_PROGRESS"
	ErrSessionInProgress        ErrCode = "SESSION_IN_PROGRESS"
	ErrQuestionNotFound         ErrCode = "QUESTION_NOT_FOUND"
	ErrQuestionNotInSession     ErrCode = "QUESTION_NOT_IN_SESSION"
	ErrInvalidAnswer            ErrCode = "INVALID_ANSWER"
	ErrAnswerTooLong            ErrCode = "ANSWER_TOO_LONG"
	ErrAnswerNotFound           ErrCode = "ANSWER_NOT_FOUND"
	ErrUnknownCheatEvent        ErrCode = "UNKNOWN_CHEAT_EVENT"
	ErrResultNotReady           ErrCode = "RESULT_NOT_READY"

	// ─── Grading ───────────────────────────────────────────────────────
	ErrNotEssay        ErrCode = "NOT_ESSAY"
	ErrScoreOutOfRange ErrCode = "SCORE_OUT_OF_RANGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)
