package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/internal/app/repository"
	"github.com/linklit/LinkLit/internal/app/service"
)

// Boundary envelope shared by all JSON endpoints.
type response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Link    interface{} `json:"link,omitempty"`
	Links   interface{} `json:"links,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// linkPayload is the wire shape of a link in responses.
type linkPayload struct {
	ShortURL    string     `json:"shortUrl,omitempty"`
	Slug        string     `json:"slug"`
	Destination string     `json:"destination,omitempty"`
	IsProtected bool       `json:"isProtected"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func success(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(response{Status: "success", Message: msg})
}

func failure(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(response{Status: "error", Message: msg})
}

// failFromErr translates the service error taxonomy into HTTP statuses and
// user-facing messages. Anything unmapped is a dependency failure reported
// generically, never with internal detail.
func failFromErr(c *fiber.Ctx, err error, quota int) error {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return failure(c, fiber.StatusBadRequest, "Invalid URL")
	case errors.Is(err, service.ErrSlugLength):
		return failure(c, fiber.StatusBadRequest, "Slug must be between 3 and 50 characters.")
	case errors.Is(err, service.ErrSlugCharset):
		return failure(c, fiber.StatusBadRequest, "Slug can only contain letters, numbers, dash, and underscore")
	case errors.Is(err, service.ErrUnknownExpiry):
		return failure(c, fiber.StatusBadRequest, "Unknown expiry option")
	case errors.Is(err, service.ErrQuotaExceeded):
		return failure(c, fiber.StatusForbidden, fmt.Sprintf(
			"You have reached the limit of %d custom links for this month. Please upgrade to create more custom links.", quota))
	case errors.Is(err, repository.ErrSlugTaken):
		return failure(c, fiber.StatusConflict, "This custom link is already in use. Please try another one.")
	case errors.Is(err, service.ErrMaliciousLink):
		return failure(c, fiber.StatusUnprocessableEntity, "Malicious link entered!")
	case errors.Is(err, service.ErrDecodeFailed):
		return failure(c, fiber.StatusUnauthorized, "Incorrect password for this link")
	case errors.Is(err, repository.ErrLinkNotFound), errors.Is(err, repository.ErrLinkExpired):
		// Expired and absent are deliberately indistinguishable externally.
		return failure(c, fiber.StatusNotFound, "Link not found")
	case errors.Is(err, repository.ErrUserNotFound):
		return failure(c, fiber.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrMissingUserID):
		return failure(c, fiber.StatusBadRequest, "User id is required")
	default:
		return failure(c, fiber.StatusInternalServerError, "Something went wrong, please try again")
	}
}
