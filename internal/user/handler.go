package user

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the user API under /user. Static segments are
// registered before /:id so they are not captured by it.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	g := app.Group("/user")
	g.Post("/create", h.createUser)
	g.Get("/users", h.getUsers)
	g.Get("/:id", h.getUser)
	g.Put("/:id", h.updateUser)
	g.Delete("/:id", h.deleteUser)
	g.Delete("/users/all", h.deleteUsers)
	g.Get("/referraltree/:id", h.getReferralTree)
	g.Get("/referraltree/:id/live", h.getLiveReferralTree)
}

func (h *Handler) createUser(c *fiber.Ctx) error {
	payload := new(CreateInput)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	created, err := h.service.Create(c.UserContext(), *payload)
	if err != nil {
		if errors.Is(err, ErrInvalidReferral) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid referral code."})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(sanitizeUser(created))
}

func (h *Handler) getUsers(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	response := make([]User, 0, len(users))
	for _, user := range users {
		response = append(response, sanitizeUser(user))
	}
	return c.JSON(response)
}

func (h *Handler) getUser(c *fiber.Ctx) error {
	user, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid user ID"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Server error", "error": err.Error()})
	}

	return c.JSON(sanitizeUser(user))
}

// updateUser responds with the record as it was before the update.
func (h *Handler) updateUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.service.GetByID(c.UserContext(), id); err != nil {
		switch {
		case errors.Is(err, ErrInvalidID):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid user ID"})
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Server error", "error": err.Error()})
		}
	}

	patch := new(Patch)
	if err := c.BodyParser(patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	before, err := h.service.Update(c.UserContext(), id, *patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	return c.JSON(sanitizeUser(before))
}

func (h *Handler) deleteUser(c *fiber.Ctx) error {
	deleted, err := h.service.Delete(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid user ID"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found"})
	case err != nil:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "User deleted successfully", "user": sanitizeUser(deleted)})
}

func (h *Handler) deleteUsers(c *fiber.Ctx) error {
	if _, err := h.service.DeleteAll(c.UserContext()); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "All users deleted successfully"})
}

func (h *Handler) getReferralTree(c *fiber.Ctx) error {
	user, err := h.service.ReferralTree(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid user ID"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found."})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to retrieve referral tree."})
	}

	user = sanitizeUser(user)
	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":       user.ID,
			"fullName": user.FullName,
			"username": user.Username,
		},
		"referralTree": user.ReferralTree,
	})
}

func (h *Handler) getLiveReferralTree(c *fiber.Ctx) error {
	tree, err := h.service.LiveReferralTree(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid user ID"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "User not found."})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Failed to build referral tree."})
	}

	return c.JSON(fiber.Map{"id": c.Params("id"), "referralTree": tree})
}
