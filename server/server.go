package server

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"noticeboard/db"
	"noticeboard/models"
)

const RestPrefix = "/rest/v1"

type ServerConfig struct {
	// The store posts are read from and written to
	Store db.Store

	// Secret access keys are signed with, empty disables key checks
	Secret []byte

	// Comma separated origins allowed by CORS
	AllowedOrigins string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Returns a fiber.App serving the board's REST interface
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"role":    c.Locals(roleKey),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	origins := config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, apikey",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if p, ok := config.Store.(pinger); ok {
			if err := p.Ping(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	rest := app.Group(RestPrefix, requireKey(config.Secret))
	h := &handlers{store: config.Store}
	rest.Get("/"+models.Table, h.list)
	rest.Post("/"+models.Table, h.create)
	rest.Get("/"+models.Table+"/:id", h.get)
	rest.Patch("/"+models.Table+"/:id", h.update)
	rest.Delete("/"+models.Table+"/:id", h.delete)

	return app
}

type handlers struct {
	store db.Store
}

func (h *handlers) list(c *fiber.Ctx) error {
	posts, err := h.store.ListPosts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(posts)
}

func (h *handlers) get(c *fiber.Ctx) error {
	id, err := postId(c)
	if err != nil {
		return err
	}
	post, err := h.store.GetPost(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(post)
}

func (h *handlers) create(c *fiber.Ctx) error {
	var post models.Post
	if err := c.BodyParser(&post); err != nil {
		return badRequest("could not parse the request body", err)
	}
	// The store assigns ids and creation times
	post.Id = 0
	post.CreatedAt = time.Time{}
	post.UpdatedAt = nil

	created, err := h.store.CreatePost(c.UserContext(), post)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *handlers) update(c *fiber.Ctx) error {
	id, err := postId(c)
	if err != nil {
		return err
	}
	var post models.Post
	if err := c.BodyParser(&post); err != nil {
		return badRequest("could not parse the request body", err)
	}

	updated, err := h.store.UpdatePost(c.UserContext(), id, post)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *handlers) delete(c *fiber.Ctx) error {
	id, err := postId(c)
	if err != nil {
		return err
	}
	if err := h.store.DeletePost(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func postId(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("post id must be a positive integer", err)
	}
	return id, nil
}
