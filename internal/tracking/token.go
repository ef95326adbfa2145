package tracking

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// TokenPayload identifies what a tracking callback refers to. Click tokens
// additionally carry the destination link and its position in the body.
type TokenPayload struct {
	DomainID   uuid.UUID
	UserID     uuid.UUID
	SequenceID uuid.UUID
	StepID     uuid.UUID
	EmailID    uuid.UUID
	Link       string
	LinkIndex  int
}

type trackingClaims struct {
	DomainID   string `json:"domainId"`
	UserID     string `json:"userId"`
	SequenceID string `json:"sequenceId"`
	StepID     string `json:"stepId"`
	EmailID    string `json:"emailId"`
	Link       string `json:"link,omitempty"`
	LinkIndex  int    `json:"linkIndex,omitempty"`
	jwt.RegisteredClaims
}

// MintToken signs a tracking token. Tokens deliberately never expire: opens
// and clicks arrive weeks after the send and must still count.
func MintToken(cfg config.TrackingConfig, payload TokenPayload) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("tracking secret is required")
	}
	claims := trackingClaims{
		DomainID:   payload.DomainID.String(),
		UserID:     payload.UserID.String(),
		SequenceID: payload.SequenceID.String(),
		StepID:     payload.StepID.String(),
		EmailID:    payload.EmailID.String(),
		Link:       payload.Link,
		LinkIndex:  payload.LinkIndex,
	}
	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing tracking token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a tracking token and returns its payload.
func ParseToken(cfg config.TrackingConfig, tokenString string) (*TokenPayload, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("tracking secret is required")
	}

	claims := &trackingClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
	)
	if err != nil {
		return nil, err
	}

	payload := &TokenPayload{Link: claims.Link, LinkIndex: claims.LinkIndex}
	fields := []struct {
		name string
		raw  string
		dst  *uuid.UUID
	}{
		{"domainId", claims.DomainID, &payload.DomainID},
		{"userId", claims.UserID, &payload.UserID},
		{"sequenceId", claims.SequenceID, &payload.SequenceID},
		{"stepId", claims.StepID, &payload.StepID},
		{"emailId", claims.EmailID, &payload.EmailID},
	}
	for _, field := range fields {
		id, err := uuid.Parse(field.raw)
		if err != nil {
			return nil, fmt.Errorf("tracking token %s: %w", field.name, err)
		}
		*field.dst = id
	}
	return payload, nil
}
