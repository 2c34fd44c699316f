package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"scholaverse/backend/internal/config"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/pkg/models"

	"github.com/coreos/go-oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth resolves the requesting student. Two modes are supported:
//
//   - "oidc": the classic OpenID Connect authorization code flow plus
//     bearer-token verification for API clients.
//   - "header": trust an identity header injected by an authenticating
//     reverse proxy (e.g. Cloudflare Access), which is how the service
//     runs behind the school network edge.
//
// In either mode the identity is an email address, which must map to a
// registered student; unregistered identities are rejected rather than
// auto-provisioned.
type Auth struct {
	mode         string
	headerName   string
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	repo         repository.Repository
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. In oidc mode it establishes a connection to the provider and
// prepares an ID token verifier.
func New(ctx context.Context, cfg *config.Config, repo repository.Repository, logger Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.DevModeBypass

	mode := strings.ToLower(cfg.Auth.Mode)
	if mode == "" {
		mode = "header"
	}

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier
	var apiVerifier *oidc.IDTokenVerifier

	if mode == "oidc" && !shouldBypass {
		if cfg.Auth.Issuer == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID, ScopeEmail},
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

		// Create a separate verifier for Access Tokens (Bearer).
		// We skip ClientID check because Access Tokens often have a different audience (e.g. "api://default")
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	headerName := cfg.Auth.Header
	if headerName == "" {
		headerName = "cf-access-authenticated-user-email"
	}

	return &Auth{
		mode:         mode,
		headerName:   headerName,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		apiVerifier:  apiVerifier,
		repo:         repo,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting the
// user to the provider's authorization endpoint. A random state value is
// stored in a cookie to mitigate CSRF attacks. In header mode the proxy owns
// the login flow, so we just bounce home.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass || a.mode != "oidc" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		// For production you should set Secure: true and SameSite=strict
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the redirect back from the identity provider. It
// verifies the state parameter, exchanges the code for tokens, validates the
// ID token, and sets a session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass || a.mode != "oidc" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// verify state
	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	// exchange code for token
	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	// set session cookie with raw id token
	http.SetCookie(w, &http.Cookie{
		Name:     "id_token",
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		// Secure: true,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   "id_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireStudent is echo middleware that resolves the requesting identity to
// a registered student and stores it in the request context under "student".
// Unregistered identities get a 403; the service never auto-provisions
// student records from an email alone.
func (a *Auth) RequireStudent() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email, err := a.identify(c)
			if err != nil {
				return err
			}

			student, err := a.repo.GetStudentByEmail(c.Request().Context(), email)
			if errors.Is(err, repository.ErrNotFound) {
				a.logger.Warn("rejected unregistered identity %s", email)
				return echo.NewHTTPError(http.StatusForbidden, "no student registered for this identity")
			}
			if err != nil {
				a.logger.Error("student lookup failed for %s: %v", email, err)
				return echo.NewHTTPError(http.StatusInternalServerError, "identity lookup failed")
			}

			c.Set("student", student)
			return next(c)
		}
	}
}

// identify extracts the verified email address of the requester according to
// the configured mode.
func (a *Auth) identify(c echo.Context) (string, error) {
	if a.authBypass {
		return "dev@localhost", nil
	}

	r := c.Request()

	if a.mode == "header" {
		email := strings.TrimSpace(r.Header.Get(a.headerName))
		if email == "" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "missing identity header")
		}
		return strings.ToLower(email), nil
	}

	var token *oidc.IDToken
	var err error

	// Check for Authorization header first (for Swagger/API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		rawToken := strings.TrimPrefix(authHeader, "Bearer ")
		token, err = a.apiVerifier.Verify(r.Context(), rawToken)
		if err != nil {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token: "+err.Error())
		}
	} else {
		cookie, cerr := r.Cookie("id_token")
		if cerr != nil {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}
		token, err = a.verifier.Verify(r.Context(), cookie.Value)
		if err != nil {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token: "+err.Error())
		}
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "failed to parse token claims")
	}
	if claims.Email == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "token has no email claim")
	}
	return strings.ToLower(claims.Email), nil
}

// StudentFromContext fetches the student injected by RequireStudent.
func StudentFromContext(c echo.Context) (*models.Student, bool) {
	student, ok := c.Get("student").(*models.Student)
	return student, ok && student != nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
