package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// errorMapping pairs a domain error with its HTTP status and response code.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// Order matters only where errors wrap each other; none of these do.
var serviceErrors = []errorMapping{
	{service.ErrInvalidFilter, http.StatusBadRequest, response.ErrInvalidFilter},
	{service.ErrTemplateNotFound, http.StatusNotFound, response.ErrTemplateNotFound},
	{service.ErrInsufficientQuestionBank, http.StatusUnprocessableEntity, response.ErrInsufficientQuestionBank},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
	{service.ErrSessionTerminated, http.StatusForbidden, response.ErrSessionTerminated},
	{service.ErrSessionNotInProgress, http.StatusConflict, response.ErrSessionNotInProgress},
	{service.ErrSessionInProgress, http.StatusConflict, response.ErrSessionInProgress},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
	{service.ErrQuestionNotInSession, http.StatusBadRequest, response.ErrQuestionNotInSession},
	{service.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrAnswerTooLong, http.StatusBadRequest, response.ErrAnswerTooLong},
	{service.ErrAnswerNotFound, http.StatusNotFound, response.ErrAnswerNotFound},
	{service.ErrUnknownCheatEvent, http.StatusBadRequest, response.ErrUnknownCheatEvent},
	{service.ErrResultNotReady, http.StatusAccepted, response.ErrResultNotReady},
	{service.ErrNotEssay, http.StatusBadRequest, response.ErrNotEssay},
	{service.ErrScoreOutOfRange, http.StatusBadRequest, response.ErrScoreOutOfRange},
}

// mapServiceError resolves err to a status and code. Unknown errors are 500s.
func mapServiceError(err error) (int, response.ErrCode) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// writeServiceError sends the mapped error. Rejections caused by a session
// having ended carry the directive the client must follow.
func writeServiceError(c *gin.Context, err error, essayMaxChars int) {
	status, code := mapServiceError(err)
	switch code {
	case response.ErrSessionTerminated:
		response.FailWithData(c, status, code, model.SessionDirectives{
			ShouldTerminate: true,
			Redirect:        model.RedirectExit,
		})
	case response.ErrSessionNotInProgress:
		response.FailWithData(c, status, code, model.SessionDirectives{
			Redirect: model.RedirectResult,
		})
	case response.ErrAnswerTooLong:
		response.FailWithMessage(c, status, code,
			i18n.Td(c.Request.Context(), string(code), map[string]any{"Max": essayMaxChars}))
	case response.ErrInternal:
		_ = c.Error(err)
		response.Fail(c, status, code)
	default:
		response.Fail(c, status, code)
	}
}
