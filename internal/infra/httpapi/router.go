package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// NewApp builds the fiber application with every route registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "payment-scheduler",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		h.logger.WithFields(logrus.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   c.Response().StatusCode(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
		return err
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})

	api := app.Group("/api")

	api.Post("/schedules", h.CreateSchedule)
	api.Get("/schedules/ready", h.ReadyPayments)
	api.Get("/owners/:ownerId/schedules", h.ListSchedules)
	api.Delete("/owners/:ownerId/schedules/:id", h.CancelSchedule)

	api.Post("/ticks/run", h.RunTick)
	api.Post("/ticks/conditional/run", h.RunConditionalTick)

	api.Get("/balance/verify", h.VerifyBalance)

	return app
}
