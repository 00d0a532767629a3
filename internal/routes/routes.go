package routes

import (
	"net/http"

	"telemed-server/internal/config"
	"telemed-server/internal/handlers"
	"telemed-server/internal/middleware"
	"telemed-server/internal/models"
	"telemed-server/internal/realtime"
	"telemed-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators the routes are built from.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Logger    zerolog.Logger
	Hub       *realtime.Hub
	Publisher realtime.Publisher // defaults to Hub
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Deps) {
	db, cfg, logger := deps.DB, deps.Config, deps.Logger
	hub := deps.Hub
	if hub == nil {
		hub = realtime.NewHub(logger)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = hub
	}

	notificationService := services.NewNotificationService(db, publisher, logger)
	appointmentService := services.NewAppointmentService(db, notificationService, logger)
	prescriptionService := services.NewPrescriptionService(db, notificationService, logger)
	recordService := services.NewMedicalRecordService(db)

	authHandler := handlers.NewAuthHandler(db, cfg, logger)
	userHandler := handlers.NewUserHandler(db, notificationService, logger)
	appointmentHandler := handlers.NewAppointmentHandler(appointmentService)
	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	medicalRecordHandler := handlers.NewMedicalRecordHandler(recordService)
	wsHandler := realtime.NewHandler(hub, cfg.Origin, middleware.GetUserIDFromContext)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg, db))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/doctors", userHandler.GetDoctors)
			userRoutes.GET("/doctor-patients", middleware.RoleAuthMiddleware(models.RoleDoctor), userHandler.GetDoctorPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PATCH("/:id/status", userHandler.UpdateUserStatus)
			}
		}

		// Role and ownership checks for appointments live in the service.
		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id/accept", appointmentHandler.AcceptAppointment)
			appointmentRoutes.PATCH("/:id/reject", appointmentHandler.RejectAppointment)
			appointmentRoutes.PATCH("/:id/complete", appointmentHandler.CompleteAppointment)
			appointmentRoutes.PATCH("/:id/cancel", appointmentHandler.CancelAppointment)
			appointmentRoutes.PATCH("/:id/reschedule", appointmentHandler.RescheduleAppointment)
			appointmentRoutes.PATCH("/:id/status", appointmentHandler.UpdateAppointmentStatus)
		}

		prescriptionRoutes := private.Group("/prescriptions")
		{
			prescriptionRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleDoctor), prescriptionHandler.IssuePrescription)
			prescriptionRoutes.GET("", prescriptionHandler.GetPrescriptions)
			prescriptionRoutes.GET("/:id", prescriptionHandler.GetPrescriptionByID)
			prescriptionRoutes.PATCH("/:id/status", middleware.RoleAuthMiddleware(models.RoleDoctor), prescriptionHandler.UpdatePrescriptionStatus)
		}

		notificationRoutes := private.Group("/notifications")
		{
			notificationRoutes.GET("", notificationHandler.GetNotifications)
			notificationRoutes.GET("/unread-count", notificationHandler.GetUnreadCount)
			notificationRoutes.PATCH("/read-all", notificationHandler.MarkAllAsRead)
			notificationRoutes.PATCH("/:id/read", notificationHandler.MarkAsRead)
		}

		medicalRecordRoutes := private.Group("/medical-records")
		{
			medicalRecordRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleDoctor), medicalRecordHandler.CreateMedicalRecord)
			medicalRecordRoutes.GET("/me", middleware.RoleAuthMiddleware(models.RolePatient), medicalRecordHandler.GetMyMedicalRecords)
			medicalRecordRoutes.GET("/patient/:patientId", medicalRecordHandler.GetMedicalRecordsForPatient)
			medicalRecordRoutes.GET("/:id", medicalRecordHandler.GetMedicalRecordByID)
			medicalRecordRoutes.PUT("/:id", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), medicalRecordHandler.UpdateMedicalRecord)
			medicalRecordRoutes.DELETE("/:id", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), medicalRecordHandler.DeleteMedicalRecord)
		}
	}

	router.GET("/ws", middleware.WebSocketAuthMiddleware(cfg, db), wsHandler.Connect)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
