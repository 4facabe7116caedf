package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/middleware"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// RouterDeps collects everything the HTTP surface needs.
type RouterDeps struct {
	Auth      *AuthHandler
	Trips     *TripHandler
	Refills   *RefillHandler
	Registry  *RegistryHandler
	Dashboard *DashboardHandler
	Reports   *ReportHandler

	Authenticator *middleware.AuthMiddleware
	Limiter       *middleware.RateLimiter
	Health        map[string]Pinger
	Log           logrus.FieldLogger
}

// NewRouter mounts every route under /api plus /health.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	if d.Limiter != nil {
		r.Use(d.Limiter.Handler)
	}

	r.Get("/health", Health(d.Health, d.Log))

	am := d.Authenticator
	can := am.RequirePermission

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", d.Auth.Login)
		r.With(am.Optional).Post("/auth/register", d.Auth.Register)

		r.Group(func(r chi.Router) {
			r.Use(am.Authenticate)

			r.Get("/auth/profile", d.Auth.GetProfile)
			r.Put("/auth/profile", d.Auth.UpdateProfile)
			r.Post("/auth/password", d.Auth.ChangePassword)
			r.Post("/auth/refresh", d.Auth.Refresh)

			r.Route("/users", func(r chi.Router) {
				r.Use(am.RequireRole(models.RoleAdmin))
				r.Get("/", d.Auth.ListUsers)
				r.Delete("/{id}", d.Auth.DeleteUser)
			})

			r.Route("/trips", func(r chi.Router) {
				r.With(can(models.ActionOperateTrips)).Post("/checkout", d.Trips.Checkout)
				r.With(can(models.ActionOperateTrips)).Post("/return", d.Trips.Return)
				r.With(can(models.ActionOperateTrips)).Post("/cancel", d.Trips.Cancel)
				r.With(can(models.ActionViewTrips)).Get("/in-progress", d.Trips.InProgress)
				r.With(can(models.ActionViewTrips)).Get("/history", d.Trips.History)
				r.With(can(models.ActionViewTrips)).Get("/{id}", d.Trips.Get)
				r.With(can(models.ActionEditTrips)).Patch("/{id}", d.Trips.Edit)
				r.With(can(models.ActionEditTrips)).Delete("/{id}", d.Trips.Delete)
			})

			r.Route("/refills", func(r chi.Router) {
				r.With(can(models.ActionRecordRefill)).Post("/", d.Refills.Record)
				r.With(can(models.ActionViewDashboard)).Get("/summary", d.Refills.Summary)
				r.With(can(models.ActionEditRefills)).Patch("/{id}", d.Refills.Update)
				r.With(can(models.ActionEditRefills)).Delete("/{id}", d.Refills.Delete)
			})

			r.Route("/vehicles", func(r chi.Router) {
				r.With(can(models.ActionViewRegistry)).Get("/", d.Registry.ListVehicles)
				r.With(can(models.ActionManageRegistry)).Post("/", d.Registry.CreateVehicle)
				r.Route("/{plate}", func(r chi.Router) {
					r.With(can(models.ActionViewRegistry)).Get("/", d.Registry.GetVehicle)
					r.With(can(models.ActionManageRegistry)).Patch("/", d.Registry.UpdateVehicle)
					r.With(can(models.ActionManageRegistry)).Delete("/", d.Registry.DeleteVehicle)
					r.With(can(models.ActionManageRegistry)).Put("/status", d.Registry.SetVehicleStatus)
					r.With(can(models.ActionManageRegistry)).Post("/documents", d.Registry.AttachVehicleDocument)
					r.With(can(models.ActionViewDashboard)).Get("/metrics", d.Refills.Metrics)
					r.With(can(models.ActionViewTrips)).Get("/refills", d.Refills.ListByVehicle)
				})
			})

			r.Route("/drivers", func(r chi.Router) {
				r.With(can(models.ActionViewRegistry)).Get("/", d.Registry.ListDrivers)
				r.With(can(models.ActionManageRegistry)).Post("/", d.Registry.CreateDriver)
				r.Route("/{id}", func(r chi.Router) {
					r.With(can(models.ActionViewRegistry)).Get("/", d.Registry.GetDriver)
					r.With(can(models.ActionManageRegistry)).Patch("/", d.Registry.UpdateDriver)
					r.With(can(models.ActionManageRegistry)).Delete("/", d.Registry.DeleteDriver)
					r.With(can(models.ActionManageRegistry)).Put("/status", d.Registry.SetDriverStatus)
					r.With(can(models.ActionManageRegistry)).Post("/documents", d.Registry.AttachDriverDocument)
				})
			})

			r.With(can(models.ActionViewRegistry)).Get("/documents/{id}", d.Registry.Document)

			r.With(can(models.ActionViewDashboard)).Get("/dashboard", d.Dashboard.Get)
			r.With(can(models.ActionClearCache)).Post("/dashboard/cache/clear", d.Dashboard.ClearCache)
			r.With(can(models.ActionViewAudit)).Get("/audit-logs", d.Dashboard.AuditLogs)

			r.Route("/reports", func(r chi.Router) {
				r.Use(can(models.ActionExportReports))
				r.Get("/trips.pdf", d.Reports.TripsPDF)
				r.Get("/trips.xlsx", d.Reports.TripsXLSX)
				r.Get("/refills.pdf", d.Reports.RefillsPDF)
				r.Get("/vehicles.pdf", d.Reports.VehiclesPDF)
			})
		})
	})

	return r
}
