package history

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/manseok-song/readlock-sub000/internal/session"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		f := Filter{
			LibraryEntryID: c.Query("library_entry_id"),
			Limit:          c.QueryInt("limit", 20),
		}
		if v := c.Query("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "from must be RFC3339")
			}
			f.From = t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "to must be RFC3339")
			}
			f.To = t
		}

		entries, err := svc.List(c.Context(), f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if entries == nil {
			entries = []session.HistoryEntry{}
		}
		return c.JSON(entries)
	})
}
