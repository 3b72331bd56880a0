package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	govalidator "github.com/go-playground/validator/v10"

	"github.com/freeexam/examdesk/internal/freeexam"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
	"github.com/freeexam/examdesk/internal/validator"
)

// failureFor maps a service error onto an HTTP status and API error code.
// The message is the upstream one when the backend sent any.
func failureFor(err error) (int, response.ErrCode, string) {
	var gateErr *service.GateClosedError
	if errors.As(err, &gateErr) {
		switch gateErr.State {
		case service.GateAlreadyParticipated:
			return http.StatusConflict, response.ErrExamCompleted, ""
		default:
			return http.StatusForbidden, response.ErrExamNotAvailable, ""
		}
	}

	switch {
	case errors.Is(err, errInvalidFrame):
		return http.StatusBadRequest, response.ErrInvalidPayload, ""
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrExamCompleted, ""
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusConflict, response.ErrExamNotStarted, ""
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound, ""
	case errors.Is(err, service.ErrSessionInactive):
		return http.StatusConflict, response.ErrSessionInactive, ""
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion, ""
	case errors.Is(err, service.ErrUnknownOption):
		return http.StatusBadRequest, response.ErrUnknownOption, ""
	case errors.Is(err, service.ErrSubmitInProgress):
		return http.StatusConflict, response.ErrSubmitInProgress, ""
	case errors.Is(err, service.ErrSubmitFailed):
		return http.StatusBadGateway, response.ErrSubmitFailed, freeexam.MessageOf(err, "")
	case errors.Is(err, service.ErrStartFailed):
		return http.StatusBadGateway, response.ErrStartFailed, freeexam.MessageOf(err, "")
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, response.ErrUserNotFound, ""
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials, ""
	case errors.Is(err, service.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType, response.ErrUnsupportedFile, ""
	case errors.Is(err, service.ErrInvalidOptions):
		return http.StatusBadRequest, response.ErrInvalidOptions, ""
	case errors.Is(err, service.ErrEmptyImport):
		return http.StatusBadRequest, response.ErrValidation, err.Error()
	case errors.Is(err, freeexam.ErrMalformedResponse):
		return http.StatusBadGateway, response.ErrUpstreamMalformed, ""
	}

	if status := freeexam.StatusOf(err); status != 0 {
		if status == http.StatusNotFound {
			return http.StatusNotFound, response.ErrNotFound, freeexam.MessageOf(err, "")
		}
		if status >= 400 && status < 500 {
			return status, response.ErrUpstream, freeexam.MessageOf(err, "")
		}
		return http.StatusBadGateway, response.ErrUpstream, freeexam.MessageOf(err, "")
	}

	return http.StatusInternalServerError, response.ErrInternal, ""
}

// fail writes err as an API error response.
func fail(c *gin.Context, err error) {
	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(ve))
		return
	}

	status, code, msg := failureFor(err)
	if status >= http.StatusInternalServerError {
		// Picked up by the access log.
		_ = c.Error(err)
	}
	response.FailWithMessage(c, status, code, msg)
}

// errInvalidFrame marks a WebSocket frame that could not be understood.
var errInvalidFrame = errors.New("invalid payload")
