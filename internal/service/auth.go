package service

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/models"
	"chat-escrow/internal/repository"
)

const forbiddenMessage = "Forbidden: insufficient privileges"

// roleClass is the outcome of a role lookup. Every class is matched
// explicitly; only roleTopTier grants access.
type roleClass int

const (
	roleNone roleClass = iota
	roleNonAdmin
	roleTopTier
)

func classifyRole(role models.Role, found bool, topRole models.Role) roleClass {
	switch {
	case !found:
		return roleNone
	case role == topRole:
		return roleTopTier
	default:
		return roleNonAdmin
	}
}

// Gate verifies bearer tokens and requires the top administrative role.
type Gate struct {
	secret  []byte
	topRole models.Role
	admins  repository.AdminRepository
	logger  *zap.Logger
}

// NewGate creates an authorization gate. Tokens are HS256 JWTs whose subject
// is the operator's user id.
func NewGate(secret string, topRole models.Role, admins repository.AdminRepository, logger *zap.Logger) *Gate {
	if topRole == "" {
		topRole = models.RoleSuperAdmin
	}
	return &Gate{secret: []byte(secret), topRole: topRole, admins: admins, logger: logger}
}

// Authorize resolves an Authorization header value to an operator holding the
// top role. It fails closed: any lookup problem is a denial.
func (g *Gate) Authorize(ctx context.Context, authHeader string) (*models.Operator, error) {
	token, err := bearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := g.verify(token)
	if err != nil {
		return nil, err
	}

	role, found, err := g.admins.GetRole(ctx, claims.Subject)
	if err != nil {
		g.logger.Warn("Role lookup failed, denying access", zap.String("user_id", claims.Subject), zap.Error(err))
		return nil, apperr.Authorization(forbiddenMessage)
	}

	switch classifyRole(role, found, g.topRole) {
	case roleTopTier:
		return &models.Operator{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
	case roleNonAdmin:
		g.logger.Info("Operator lacks required role", zap.String("user_id", claims.Subject), zap.String("role", string(role)))
		return nil, apperr.Authorization(forbiddenMessage)
	case roleNone:
		g.logger.Info("Caller is not an operator", zap.String("user_id", claims.Subject))
		return nil, apperr.Authorization(forbiddenMessage)
	default:
		return nil, apperr.Authorization(forbiddenMessage)
	}
}

func bearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", apperr.Authentication("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.Authentication("Authorization header format must be Bearer <token>")
	}
	return parts[1], nil
}

func (g *Gate) verify(tokenString string) (*models.Claims, error) {
	if len(g.secret) == 0 {
		return nil, apperr.Configuration("JWT secret is not configured", nil)
	}

	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Authentication("Token expired")
		}
		g.logger.Debug("Invalid JWT token", zap.Error(err))
		return nil, apperr.Authentication("Invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperr.Authentication("Invalid token")
	}
	return claims, nil
}
