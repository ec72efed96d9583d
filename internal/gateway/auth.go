package gateway

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofiber/fiber/v2"
)

// authClaims mirrors the teacher's routes/middlewares.Auth claims
// shape, trimmed to the fields this system's risk and settlement
// layers actually need: a stable user id.
type authClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`

	jwt.StandardClaims
}

// authenticate is grounded on routes/middlewares/auth.go: RSA-signed
// JWT in the Authorization header, public key from JWT_PUBLIC_KEY.
// Unlike the teacher it does not round-trip through a Postgres member
// row -- this system only needs the authenticated user id to key
// RiskGate positions, not a full account record.
func authenticate(c *fiber.Ctx) error {
	token := c.Get("Authorization")
	if len(token) == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(Errors{Errors: []string{"authz.invalid_session"}})
	}
	token = strings.Replace(token, "Bearer ", "", 1)

	pemBytes, err := base64.StdEncoding.DecodeString(os.Getenv("JWT_PUBLIC_KEY"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(Errors{Errors: []string{"server.internal_error"}})
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(Errors{Errors: []string{"server.internal_error"}})
	}

	var claims authClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	}); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(Errors{Errors: []string{"jwt.decode_and_verify"}})
	}

	c.Locals("UserID", claims.UID)
	return c.Next()
}

func currentUserID(c *fiber.Ctx) string {
	uid, _ := c.Locals("UserID").(string)
	return uid
}
