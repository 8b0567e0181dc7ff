package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret []byte
	adminIDs  map[int64]bool
)

// Init sets the signing secret and the set of admin Telegram ids. Must be
// called once at startup before any token is issued or parsed.
func Init(secret string, admins []int64) {
	if secret == "" {
		panic("auth: JWT secret is empty")
	}
	jwtSecret = []byte(secret)
	adminIDs = make(map[int64]bool, len(admins))
	for _, id := range admins {
		adminIDs[id] = true
	}
}

// IsAdmin reports whether the user id belongs to the configured admin set.
func IsAdmin(userID int64) bool {
	return adminIDs[userID]
}

// GenerateToken issues a 24h HS256 token. Admin status is a claim so the
// middleware doesn't need a lookup per request.
func GenerateToken(userID int64) (string, error) {
	now := time.Now().Unix()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"is_admin": IsAdmin(userID),
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      now,
		"nbf":      now,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken validates a token and returns the user id and admin flag.
func ParseToken(tokenString string) (int64, bool, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, false, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if exp, ok := claims["exp"].(float64); ok && int64(exp) < now {
		return 0, false, errors.New("token expired")
	}
	if nbf, ok := claims["nbf"].(float64); ok && int64(nbf) > now {
		return 0, false, errors.New("token not valid yet")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false, errors.New("user_id not found")
	}

	admin, _ := claims["is_admin"].(bool)
	return int64(userID), admin, nil
}
