package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nurpe/marketplace-ledger/internal/auth"
	"github.com/nurpe/marketplace-ledger/internal/model"
)

const profileKey = "profile"

// Identity rejects requests whose acting profile cannot be resolved.
func Identity(resolver auth.Resolver, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := resolver.Resolve(c.Request)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingCredentials),
				errors.Is(err, auth.ErrInvalidCredentials),
				errors.Is(err, auth.ErrUnknownProfile):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			default:
				log.Error().Err(err).Msg("resolve profile failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
		c.Set(profileKey, *profile)
		c.Next()
	}
}

func MustProfile(c *gin.Context) (model.Profile, bool) {
	value, ok := c.Get(profileKey)
	if !ok {
		return model.Profile{}, false
	}
	profile, ok := value.(model.Profile)
	return profile, ok
}
