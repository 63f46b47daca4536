package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	LibraryEntryID string `json:"library_entry_id"`
	StartPage      int    `json:"start_page"`
	Title          string `json:"title"`
}

type endRequest struct {
	EndPage    int     `json:"end_page"`
	FocusScore float64 `json:"focus_score"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.LibraryEntryID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "library_entry_id required")
		}
		sess, err := svc.StartSession(c.Context(), req.LibraryEntryID, req.StartPage, req.Title)
		if err != nil {
			return statusError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.PauseSession(c.Context())
		if err != nil {
			return statusError(err)
		}
		if sess == nil {
			return c.JSON(fiber.Map{"active": false})
		}
		return c.JSON(sess)
	})

	r.Post("/resume", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.ResumeSession(c.Context())
		if err != nil {
			return statusError(err)
		}
		if sess == nil {
			return c.JSON(fiber.Map{"active": false})
		}
		return c.JSON(sess)
	})

	r.Post("/end", authMiddleware, func(c *fiber.Ctx) error {
		var req endRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.EndSession(c.Context(), req.EndPage, req.FocusScore)
		if err != nil {
			return statusError(err)
		}
		return c.JSON(res)
	})

	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.ActiveSession(c.Context())
		if err != nil {
			return statusError(err)
		}
		if sess == nil {
			return c.JSON(fiber.Map{"active": false})
		}
		return c.JSON(sess)
	})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrNoActiveSession):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
