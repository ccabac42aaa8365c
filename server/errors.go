package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"noticeboard/auth"
	"noticeboard/db"
	"noticeboard/models"
)

func badRequest(message string, cause error) error {
	apiErr := &models.APIError{Message: message, Code: "22P02", Status: fiber.StatusBadRequest}
	if cause != nil {
		apiErr.Details = cause.Error()
	}
	return apiErr
}

// errorHandler renders every error as a PostgREST style JSON body
func errorHandler(c *fiber.Ctx, err error) error {
	apiErr := toAPIError(err)
	if apiErr.Status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err,
		}).Error("Request failed")
	}
	return c.Status(apiErr.Status).JSON(apiErr)
}

func toAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	var fiberErr *fiber.Error

	switch {
	case errors.Is(err, db.ErrNotFound):
		return &models.APIError{
			Message: "post not found",
			Code:    "PGRST116",
			Details: "The result contains 0 rows",
			Status:  fiber.StatusNotFound,
		}
	case errors.Is(err, models.ErrInvalidPost):
		return &models.APIError{Message: err.Error(), Code: "23502", Status: fiber.StatusBadRequest}
	case errors.Is(err, auth.ErrMissingKey), errors.Is(err, auth.ErrInvalidKey):
		return &models.APIError{
			Message: err.Error(),
			Code:    "PGRST301",
			Hint:    `pass an access key from "noticeboard keygen" in the apikey header`,
			Status:  fiber.StatusUnauthorized,
		}
	case errors.As(err, &apiErr):
		out := *apiErr
		if out.Status == 0 {
			out.Status = fiber.StatusInternalServerError
		}
		return &out
	case errors.As(err, &fiberErr):
		return &models.APIError{Message: fiberErr.Message, Status: fiberErr.Code}
	default:
		return &models.APIError{Message: "internal server error", Status: fiber.StatusInternalServerError}
	}
}
