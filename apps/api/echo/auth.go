package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enroll"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "sessionToken",
		Claims:        new(Claims),
	}

	errClaimsNotFoundInCtx = errors.New("session claims not found in echo.Context")
)

func init() {
	appJWTConfig.SigningKey = []byte(core.Conf.SecretKey)
}

// Claims represents the viewer session transmitted via a JWT. Sessions are
// issued at opt-in; Subject is the enrollment id.
type Claims struct {
	jwt.StandardClaims
	FirstName string `json:"first_name,omitempty"`
	Course    string `json:"course,omitempty"`
}

func GetSessionClaims(enr enroll.Enrollment) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   enr.ID,
			Audience:  "Viewer",
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		FirstName: enr.FirstName,
		Course:    enr.Course,
	}
}

func makeToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(core.Conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing session token")
	}
	return signed, nil
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return claims, nil
		}
	}
	return nil, errClaimsNotFoundInCtx
}
