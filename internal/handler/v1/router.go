package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/domain"
	"github.com/slotwise-health/slotwise/internal/handler/middleware"
	"github.com/slotwise-health/slotwise/pkg/auth"
	"github.com/slotwise-health/slotwise/pkg/metrics"
)

type RouterDeps struct {
	Auth      *AuthHandler
	Patients  *PatientHandler
	Doctors   *DoctorHandler
	Schedules *ScheduleHandler
	Bookings  *BookingHandler

	JWT     *auth.JWTManager
	Metrics *metrics.Collector
	Log     *zap.Logger

	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter wires the full HTTP surface. Staff roles manage patients and
// schedules; booking endpoints additionally admit patients acting on their
// own appointments.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.RateLimit(d.RateLimitRPS, d.RateLimitBurst, d.Log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", d.Auth.Login)
		authGroup.POST("/refresh", d.Auth.Refresh)
		authGroup.POST("/change-password", middleware.Authenticate(d.JWT), d.Auth.ChangePassword)
	}

	authed := api.Group("")
	authed.Use(middleware.Authenticate(d.JWT))

	staff := middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor, domain.RoleNurse, domain.RoleReceptionist)
	staffOrPatient := middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor, domain.RoleNurse, domain.RoleReceptionist, domain.RolePatient)
	scheduleAdmin := middleware.RequireRole(domain.RoleAdmin, domain.RoleDoctor)

	patients := authed.Group("/patients")
	{
		patients.POST("", staff, d.Patients.Create)
		patients.GET("", staff, d.Patients.List)
		patients.GET("/:id", staffOrPatient, d.Patients.Get)
		patients.DELETE("/:id", middleware.RequireRole(domain.RoleAdmin), d.Patients.Deactivate)
	}

	doctors := authed.Group("/doctors")
	{
		doctors.GET("", staffOrPatient, d.Doctors.List)
		doctors.GET("/:doctorId", staffOrPatient, func(c *gin.Context) {
			// Route param is doctorId to share the prefix with schedule
			// routes; the handler reads "id".
			c.Params = append(c.Params, gin.Param{Key: "id", Value: c.Param("doctorId")})
			d.Doctors.Get(c)
		})
		doctors.GET("/:doctorId/schedule", staffOrPatient, d.Schedules.GetDay)
		doctors.PUT("/:doctorId/schedule/template", scheduleAdmin, d.Schedules.ApplyTemplate)
		doctors.GET("/:doctorId/availability", staffOrPatient, d.Bookings.Suggest)
	}

	specialties := authed.Group("/specialties")
	{
		specialties.GET("", staffOrPatient, d.Doctors.ListSpecialties)
		specialties.GET("/:id/services", staffOrPatient, d.Doctors.ListServices)
	}

	appointments := authed.Group("/appointments")
	appointments.Use(staffOrPatient)
	{
		appointments.POST("", d.Bookings.Book)
		appointments.GET("", d.Bookings.List)
		appointments.GET("/:id", d.Bookings.Get)
		appointments.POST("/:id/cancel", d.Bookings.Cancel)
		appointments.POST("/:id/reschedule", d.Bookings.Reschedule)
	}

	return r
}
