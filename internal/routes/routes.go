package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/handlers"
	"clinic-app-server/internal/middleware"
	"clinic-app-server/internal/models"
	"clinic-app-server/internal/storage"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/upload"
	"clinic-app-server/internal/utils"
)

// Dependencies are the constructed clients the routes are served with.
type Dependencies struct {
	Config   *config.Config
	Stores   *store.Stores
	Storage  storage.Client
	Pipeline *upload.Pipeline
	Tokens   *utils.TokenService
	Denylist utils.Denylist
	Logger   *zap.Logger
}

// route declares one endpoint. An empty role means the route is public and a
// zero maxBody leaves the body unlimited.
type route struct {
	method      string
	path        string
	role        models.Role
	rateLimited bool
	maxBody     int64
	handler     gin.HandlerFunc
}

// NewRouter builds the engine with global middleware and every route.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{deps.Config.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = upload.New(deps.Storage, deps.Stores, deps.Config.Storage.RootFolder, deps.Logger)
	}

	patientAuth := handlers.NewAuthHandler(deps.Stores.Patients, deps.Tokens, deps.Denylist, pipeline, deps.Logger)
	adminAuth := handlers.NewAuthHandler(deps.Stores.Admins, deps.Tokens, deps.Denylist, pipeline, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.Stores, deps.Logger)
	reportHandler := handlers.NewReportHandler(pipeline, deps.Stores, deps.Logger)
	patientUpload := handlers.NewUploadHandler(pipeline, models.RolePatient, deps.Logger)
	adminUpload := handlers.NewUploadHandler(pipeline, models.RoleAdmin, deps.Logger)

	patient, admin := models.RolePatient, models.RoleAdmin
	imageBody := int64(upload.MaxImageBytes + middleware.MultipartOverhead)
	reportBody := int64(upload.MaxReportBytes + middleware.MultipartOverhead)
	table := []route{
		{method: http.MethodGet, path: "/", handler: handlers.Root},
		{method: http.MethodGet, path: "/health", handler: handlers.Health},
		{method: http.MethodGet, path: "/api/public/users/search", handler: userHandler.PublicSearch},

		// Patients
		{method: http.MethodPost, path: "/api/auth/signup", rateLimited: true, maxBody: imageBody, handler: patientAuth.Signup},
		{method: http.MethodPost, path: "/api/auth/login", rateLimited: true, handler: patientAuth.Login},
		{method: http.MethodPost, path: "/api/auth/logout", role: patient, handler: patientAuth.Logout},
		{method: http.MethodGet, path: "/api/auth/users", role: patient, handler: userHandler.GetUsers},
		{method: http.MethodGet, path: "/api/auth/profile", role: patient, handler: userHandler.GetProfileByEmail},
		{method: http.MethodGet, path: "/api/auth/profile/:id", role: patient, handler: userHandler.GetProfileByID},
		{method: http.MethodGet, path: "/api/auth/my-reports", role: patient, handler: reportHandler.GetMyReports},
		{method: http.MethodGet, path: "/api/auth/me", role: patient, handler: userHandler.GetMe},
		{method: http.MethodPost, path: "/api/upload/image", role: patient, rateLimited: true, maxBody: imageBody, handler: patientUpload.UploadImage},

		// Admins
		{method: http.MethodPost, path: "/api/admin/signup", rateLimited: true, maxBody: imageBody, handler: adminAuth.Signup},
		{method: http.MethodPost, path: "/api/admin/login", rateLimited: true, handler: adminAuth.Login},
		{method: http.MethodPost, path: "/api/admin/logout", role: admin, handler: adminAuth.Logout},
		{method: http.MethodPost, path: "/api/admin/image-upload", role: admin, rateLimited: true, maxBody: imageBody, handler: adminUpload.UploadImage},
		{method: http.MethodGet, path: "/api/admin/users", role: admin, handler: userHandler.GetUsers},
		{method: http.MethodGet, path: "/api/admin/users/find", role: admin, handler: userHandler.FindUsers},
		{method: http.MethodPost, path: "/api/admin/users/find", role: admin, handler: userHandler.FindUsers},
		{method: http.MethodGet, path: "/api/admin/users/search", role: admin, handler: userHandler.SearchUsers},
		{method: http.MethodPost, path: "/api/admin/users/:userId/reports", role: admin, rateLimited: true, maxBody: reportBody, handler: reportHandler.CreateReport},
		{method: http.MethodPost, path: "/api/admin/users/:userId/reports/json", role: admin, maxBody: reportBody, handler: reportHandler.CreateJSONReport},
		{method: http.MethodPost, path: "/api/admin/users/:userId/reports/file", role: admin, rateLimited: true, maxBody: reportBody, handler: reportHandler.CreateFileReport},
		{method: http.MethodGet, path: "/api/admin/users/:userId/reports", role: admin, handler: reportHandler.GetReportsForPatient},
		{method: http.MethodGet, path: "/api/admin/reports", role: admin, handler: reportHandler.GetAllReports},
		{method: http.MethodGet, path: "/api/admin/admins", role: admin, handler: userHandler.GetAdmins},
	}

	guards := map[models.Role]gin.HandlerFunc{
		patient: middleware.RequireRole(deps.Tokens, deps.Denylist, patient),
		admin:   middleware.RequireRole(deps.Tokens, deps.Denylist, admin),
	}
	limiter := middleware.RateLimit(deps.Config.RateLimitPerMinute)

	for _, r := range table {
		chain := make([]gin.HandlerFunc, 0, 4)
		if r.rateLimited {
			chain = append(chain, limiter)
		}
		if r.role != "" {
			chain = append(chain, guards[r.role])
		}
		if r.maxBody > 0 {
			chain = append(chain, middleware.BodyLimit(r.maxBody))
		}
		chain = append(chain, r.handler)
		router.Handle(r.method, r.path, chain...)
	}
}
