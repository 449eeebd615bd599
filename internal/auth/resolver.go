package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

const ProfileHeader = "profile_id"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownProfile     = errors.New("unknown profile")
)

// Resolver identifies the profile acting on a request.
type Resolver interface {
	Resolve(r *http.Request) (*model.Profile, error)
}

type ProfileLookup interface {
	GetByID(ctx context.Context, id uint) (*model.Profile, error)
}

// HeaderResolver trusts the profile_id request header.
type HeaderResolver struct {
	profiles ProfileLookup
}

func NewHeaderResolver(profiles ProfileLookup) *HeaderResolver {
	return &HeaderResolver{profiles: profiles}
}

func (h *HeaderResolver) Resolve(r *http.Request) (*model.Profile, error) {
	raw := strings.TrimSpace(r.Header.Get(ProfileHeader))
	if raw == "" {
		return nil, ErrMissingCredentials
	}
	id, err := parseProfileID(raw)
	if err != nil {
		return nil, err
	}
	return lookup(r.Context(), h.profiles, id)
}

// JWTResolver accepts HS256 bearer tokens whose subject is a profile id.
type JWTResolver struct {
	secret   []byte
	profiles ProfileLookup
}

func NewJWTResolver(secret string, profiles ProfileLookup) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), profiles: profiles}
}

func (j *JWTResolver) Resolve(r *http.Request) (*model.Profile, error) {
	header := r.Header.Get("Authorization")
	if len(header) <= 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return nil, ErrMissingCredentials
	}

	token, err := jwt.ParseWithClaims(header[7:], &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	id, err := parseProfileID(subject)
	if err != nil {
		return nil, err
	}
	return lookup(r.Context(), j.profiles, id)
}

// IssueToken signs an access token for the profile.
func IssueToken(secret string, profileID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(profileID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseProfileID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: malformed profile id", ErrInvalidCredentials)
	}
	return uint(id), nil
}

func lookup(ctx context.Context, profiles ProfileLookup, id uint) (*model.Profile, error) {
	profile, err := profiles.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownProfile
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}
