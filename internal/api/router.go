package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/jedilnik/internal/approval"
	"github.com/erazemk/jedilnik/internal/images"
	"github.com/erazemk/jedilnik/internal/staging"
)

// Options wires the router to its collaborators.
type Options struct {
	DB             *sql.DB
	JWTSecret      string
	SiteAdmin      string
	Staging        *staging.Store
	ContentRoot    string
	MaxUploadBytes int64
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	authorizer := &approval.Authorizer{DB: opts.DB, SiteAdmin: opts.SiteAdmin}

	authHandler := &AuthHandler{DB: opts.DB, JWTSecret: opts.JWTSecret}
	usersHandler := &UsersHandler{DB: opts.DB}
	catalogHandler := &CatalogHandler{DB: opts.DB}
	importHandler := &ImportHandler{
		DB:             opts.DB,
		Staging:        opts.Staging,
		ContentRoot:    opts.ContentRoot,
		MaxUploadBytes: opts.MaxUploadBytes,
	}
	verificationHandler := &VerificationHandler{Authorizer: authorizer}

	authMW := AuthMiddleware(opts.JWTSecret, opts.DB)
	identify := IdentifyMiddleware(opts.JWTSecret, opts.DB)
	requireAdmin := RequireSiteAdmin(authorizer)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/catalog", catalogHandler.Approved)
	mux.Handle("GET "+images.PublicPrefix+"/", http.StripPrefix(images.PublicPrefix, http.FileServer(http.Dir(opts.ContentRoot))))

	// Account.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (site admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	mux.Handle("GET /api/catalog/all", authMW(requireAdmin(http.HandlerFunc(catalogHandler.All))))

	// Import staging, scoped to the caller.
	mux.Handle("POST /api/import", authMW(http.HandlerFunc(importHandler.Upload)))
	mux.Handle("GET /api/import", authMW(http.HandlerFunc(importHandler.Preview)))
	mux.Handle("DELETE /api/import", authMW(http.HandlerFunc(importHandler.Clear)))
	mux.Handle("GET /api/import/images-template", authMW(http.HandlerFunc(importHandler.ImagesTemplate)))
	mux.Handle("POST /api/import/commit", authMW(http.HandlerFunc(importHandler.Commit)))

	// Verification. The authorizer rejects anonymous callers itself.
	mux.Handle("GET /api/verification", identify(http.HandlerFunc(verificationHandler.Queue)))
	mux.Handle("POST /api/verification/restaurants", identify(http.HandlerFunc(verificationHandler.ApproveRestaurants)))
	mux.Handle("POST /api/verification/menu-items", identify(http.HandlerFunc(verificationHandler.ApproveMenuItems)))

	return mux
}
