package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	USER_ID_KEY   = "userId"
	GITHUB_ID_KEY = "githubId"
	REPO_ID_KEY   = "repoId"
)

// JWTAuth validates the session or repo-scoped token carried either as an
// HTTP-only cookie or as a bearer header. Session tokens carry userId and
// githubId; repo tokens (the ENV_ACCESS_TOKEN secret injected into CI)
// carry userId and repoId.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No credentials provided"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			log.Printf("can't parse a token, %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token claims"})
			return
		}

		userId, ok := claims["userId"].(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token claims"})
			return
		}
		if _, err := uuid.Parse(userId); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token claims"})
			return
		}
		c.Set(USER_ID_KEY, userId)

		if githubId, ok := claims["githubId"].(float64); ok {
			c.Set(GITHUB_ID_KEY, int64(githubId))
		}
		if repoId, ok := claims["repoId"].(float64); ok {
			c.Set(REPO_ID_KEY, int64(repoId))
		}

		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie("jwt"); err == nil && cookie != "" {
		return cookie
	}
	auth := c.Request.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		return ""
	}
	return token
}

// UserIdFromContext returns the authenticated user's id, aborting with 401
// when the middleware did not run or the claim is broken.
func UserIdFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(USER_ID_KEY)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized"})
		return uuid.Nil, false
	}
	userId, err := uuid.Parse(value.(string))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized"})
		return uuid.Nil, false
	}
	return userId, true
}
