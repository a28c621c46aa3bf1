package controllers

import (
	"log"
	"net/http"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Vijay-papanaboina/Frontbase-Backend/middleware"
	"github.com/Vijay-papanaboina/Frontbase-Backend/models"
	"github.com/Vijay-papanaboina/Frontbase-Backend/services"
)

const sessionTokenTTL = 7 * 24 * time.Hour

type AuthController struct {
	DB            *models.Database
	Github        *services.GithubService
	JwtSecret     string
	FrontendUrl   string
	SecureCookies bool
}

func NewAuthController(db *models.Database, githubService *services.GithubService, jwtSecret string, frontendUrl string, secureCookies bool) *AuthController {
	return &AuthController{
		DB:            db,
		Github:        githubService,
		JwtSecret:     jwtSecret,
		FrontendUrl:   frontendUrl,
		SecureCookies: secureCookies,
	}
}

// GithubLogin starts the OAuth flow.
func (ac *AuthController) GithubLogin(c *gin.Context) {
	state := uniuri.New()
	c.SetCookie("oauth_state", state, 600, "/", "", ac.SecureCookies, true)
	c.Redirect(http.StatusFound, ac.Github.AuthCodeURL(state))
}

// GithubCallback exchanges the authorization code, records the user and
// issues the session cookie.
func (ac *AuthController) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No code provided."})
		return
	}

	if state, err := c.Cookie("oauth_state"); err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state."})
		return
	}
	c.SetCookie("oauth_state", "", -1, "/", "", ac.SecureCookies, true)

	accessToken, err := ac.Github.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		log.Printf("OAuth exchange failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to get GitHub access token"})
		return
	}

	githubUser, primaryEmail, err := ac.Github.FetchUser(c.Request.Context(), accessToken)
	if err != nil {
		log.Printf("Fetching GitHub user failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch GitHub user data"})
		return
	}

	user, err := ac.DB.CreateOrUpdateUser(
		githubUser.GetID(),
		githubUser.GetLogin(),
		githubUser.GetName(),
		githubUser.GetAvatarURL(),
		githubUser.GetHTMLURL(),
		primaryEmail,
		accessToken,
	)
	if err != nil {
		log.Printf("Error storing user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to store user"})
		return
	}

	token, err := ac.signSessionToken(user)
	if err != nil {
		log.Printf("Error signing session token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create session"})
		return
	}

	c.SetCookie("jwt", token, int(sessionTokenTTL.Seconds()), "/", "", ac.SecureCookies, true)
	c.Redirect(http.StatusFound, ac.FrontendUrl+"/dashboard")
}

// Me returns the authenticated user's profile.
func (ac *AuthController) Me(c *gin.Context) {
	userId, ok := middleware.UserIdFromContext(c)
	if !ok {
		return
	}
	user, err := ac.DB.GetUser(userId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (ac *AuthController) Logout(c *gin.Context) {
	c.SetCookie("jwt", "", -1, "/", "", ac.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully."})
}

func (ac *AuthController) signSessionToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"userId":   user.ID.String(),
		"githubId": user.GithubId,
		"exp":      time.Now().Add(sessionTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ac.JwtSecret))
}
