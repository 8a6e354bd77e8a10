package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wardenbot/warden/moderation/engine"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type TimersResponse struct {
	Count  int            `json:"count"`
	Timers []engine.Timer `json:"timers"`
}

func (srv *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("warden"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if srv.adminToken != "" {
		admin := e.Group("/admin", srv.requireAdmin)
		admin.GET("/timers", srv.HandleListTimers)
		admin.POST("/reconcile", srv.HandleReconcile)
		admin.GET("/reconcile", srv.HandleLastReconcile)
	} else {
		srv.logger.Info("no admin token configured, admin API disabled")
	}
	return e
}

// requires header `Authorization: Bearer {admin token}`
func (srv *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	expected := "Bearer " + srv.adminToken
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != expected {
			return echo.NewHTTPError(http.StatusForbidden, "admin auth required")
		}
		return next(c)
	}
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("warden-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

// GET /admin/timers
func (srv *Server) HandleListTimers(c echo.Context) error {
	timers := srv.engine.Scheduler.Pending()
	return c.JSON(http.StatusOK, TimersResponse{Count: len(timers), Timers: timers})
}

// POST /admin/reconcile runs a sweep synchronously and returns its report
func (srv *Server) HandleReconcile(c echo.Context) error {
	report, err := srv.engine.Reconcile(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// GET /admin/reconcile returns the most recent sweep's report
func (srv *Server) HandleLastReconcile(c echo.Context) error {
	report := srv.engine.LastReport()
	if report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no reconciliation sweep has run yet")
	}
	return c.JSON(http.StatusOK, report)
}
