// routes.go - Route registration helpers
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/myaccess/kiosk-console/internal/logging"
	"go.uber.org/zap"
)

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handler, wsh *WebSocketHandler) {
	api := e.Group("/api")

	api.GET("/health", h.HandleHealth)
	api.GET("/devices", h.HandleListDevices)
	api.GET("/widgets/palette", h.HandleGetPalette)

	// Device dashboards
	dev := api.Group("/devices/:deviceId")
	dev.GET("/ui-config", h.HandleGetUIConfig)
	dev.PUT("/ui-config", h.HandlePutUIConfig)
	dev.GET("/ui-config/export", h.HandleExportUIConfig)
	dev.POST("/ui-config/import", h.HandleImportUIConfig)
	dev.POST("/widgets", h.HandleDropWidget)
	dev.PUT("/widgets/:widgetId", h.HandleUpdateWidget)
	dev.PUT("/widgets/:widgetId/position", h.HandleMoveWidget)
	dev.DELETE("/widgets/:widgetId", h.HandleRemoveWidget)
	dev.POST("/widgets/:widgetId/interact", h.HandleInteract)
	dev.GET("/views", h.HandleGetViews)
	dev.GET("/document", h.HandleGetDocument)
	dev.POST("/document", h.HandlePushDocument)
	dev.POST("/connect", h.HandleConnect)
	dev.DELETE("/connect", h.HandleDisconnect)

	// Payload editor
	pl := api.Group("/payload")
	pl.GET("/types", h.HandleNodeTypes)
	pl.POST("/tree", h.HandleDocumentToTree)
	pl.POST("/document", h.HandleTreeToDocument)
	pl.POST("/body", h.HandleTreeToBody)
	pl.POST("/edit", h.HandleEditTree)
	pl.POST("/structured", h.HandleStructured)

	// Live dashboards
	api.GET("/ws/devices/:deviceId", wsh.HandleWebSocket)
}

// MiddlewareOptions tunes SetupMiddleware.
type MiddlewareOptions struct {
	BodyLimit      string
	RequestTimeout time.Duration
	// AllowOrigins enables CORS for the listed origins; empty disables it.
	AllowOrigins   []string
	RequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, log *zap.Logger, opts MiddlewareOptions) {
	if log == nil {
		log = zap.NewNop()
	}
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))

	if opts.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:       true,
			LogStatus:    true,
			LogMethod:    true,
			LogError:     true,
			LogRequestID: true,
			HandleError:  true,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" || strings.HasPrefix(path, "/api/ws/")
			},
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.String("requestId", v.RequestID),
				}
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				log.Info("request", fields...)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: opts.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				return strings.Contains(c.Request().URL.Path, "/ws/")
			},
			ErrorMessage: "Request timeout",
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if len(opts.AllowOrigins) == 0 {
		return
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
}

// requestLogger puts a logger tagged with the request id into the request
// context.
func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			ctx := logging.WithLogger(req.Context(), log.With(zap.String("requestId", rid)))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
