package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens issued by the identity service.
type JWTClaims struct {
	UserID        string   `json:"user_id"`
	Role          UserRole `json:"role"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	ParticipantID string   `json:"participant_id,omitempty"`
	InstructorID  string   `json:"instructor_id,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the principal can act on any registration.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && (c.Role == RoleAdmin || c.Role == RoleSuperAdmin)
}

// OwnsParticipant reports whether the principal is the given participant.
func (c *JWTClaims) OwnsParticipant(participantID string) bool {
	return c != nil && c.ParticipantID != "" && c.ParticipantID == participantID
}
