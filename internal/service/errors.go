package service

import "errors"

// Domain errors. Handlers map them to response codes with errors.Is.
var (
	ErrInvalidFilter            = errors.New("invalid selection filter")
	ErrTemplateNotFound         = errors.New("no active exam template for filter")
	ErrInsufficientQuestionBank = errors.New("question bank below minimum for filter")
	ErrDuplicateSelection       = errors.New("selector produced duplicate question ids")

	ErrSessionNotFound      = errors.New("exam session not found")
	ErrNotSessionOwner      = errors.New("exam session belongs to another candidate")
	ErrSessionTerminated    = errors.New("exam session was terminated")
	ErrSessionNotInProgress = errors.New("exam session is not in progress")
	ErrSessionInProgress    = errors.New("exam session is still in progress")

	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotInSession = errors.New("question is not part of this exam session")
	ErrAnswerTooLong        = errors.New("essay answer exceeds character budget")
	ErrInvalidAnswer        = errors.New("answer does not fit the question type")
	ErrAnswerNotFound       = errors.New("answer not found")

	ErrUnknownCheatEvent = errors.New("unknown cheat event type")

	ErrNotEssay          = errors.New("only essay answers take a manual score")
	ErrScoreOutOfRange   = errors.New("manual score outside 0..weight")
	ErrResultNotReady    = errors.New("exam result is not available yet")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenNotCandidate = errors.New("token does not carry a candidate identity")
)
