package config

import (
	"time"

	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/models"
)

// Config holds the per-category limits.
type Config struct {
	Limits map[models.Category]Limit
}

// Limit defines rate limit parameters for a category.
type Limit struct {
	MaxRequests int
	Window      time.Duration
	// Message is the client-facing text of the 429 response.
	Message string
}

const defaultMessage = "Trop de requêtes. Veuillez réessayer plus tard."

// DefaultConfig returns the production limits.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[models.Category]Limit{
			models.CategoryAuth: {
				MaxRequests: 3,
				Window:      15 * time.Minute,
				Message:     "Trop de tentatives de connexion. Veuillez réessayer dans 15 minutes.",
			},
			models.CategoryUpload: {
				MaxRequests: 10,
				Window:      time.Minute,
				Message:     "Trop de fichiers envoyés. Veuillez patienter avant un nouvel envoi.",
			},
			models.CategoryRead: {
				MaxRequests: 100,
				Window:      time.Minute,
				Message:     defaultMessage,
			},
			models.CategoryWrite: {
				MaxRequests: 20,
				Window:      time.Minute,
				Message:     "Trop de modifications. Veuillez ralentir.",
			},
			models.CategoryFinancial: {
				MaxRequests: 5,
				Window:      time.Minute,
				Message:     "Trop d'opérations financières. Veuillez patienter une minute.",
			},
			models.CategoryDefault: {
				MaxRequests: 60,
				Window:      time.Minute,
				Message:     defaultMessage,
			},
		},
	}
}

// Limit returns the limit for a category, falling back to the default
// category for unknown ones.
func (c *Config) Limit(category models.Category) Limit {
	if limit, ok := c.Limits[category]; ok {
		return limit
	}
	return c.Limits[models.CategoryDefault]
}
