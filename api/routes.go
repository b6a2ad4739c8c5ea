package api

import (
	"net/http/pprof"

	"packet-intake/internal/logger"

	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	Token string
	Pprof bool
	Log   *logger.Logger
}

// NewRouter builds the gin engine for the read-only API.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(TraceMiddleware(handlers.Traces))
	router.Use(AccessLogMiddleware(opts.Log))
	router.GET("/healthz", handlers.Health)

	secured := router.Group("/", AuthMiddleware(opts.Token, opts.Log))
	RegisterRoutes(secured, handlers)
	if opts.Pprof {
		RegisterPprof(secured.Group("/debug/pprof"))
	}
	return router
}

func RegisterRoutes(router gin.IRoutes, handlers *Handlers) {
	router.GET("/api/stats", handlers.GetStats)
	router.GET("/api/ports", handlers.GetPorts)
	router.GET("/api/ports/:id", handlers.GetPort)
	router.GET("/api/workers", handlers.GetWorkers)
	router.GET("/api/history", handlers.GetHistory)
	router.GET("/api/alerts", handlers.GetAlerts)
	router.GET("/api/traces", handlers.GetTraces)
}

func RegisterPprof(group *gin.RouterGroup) {
	group.GET("/", gin.WrapF(pprof.Index))
	group.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	group.GET("/profile", gin.WrapF(pprof.Profile))
	group.GET("/symbol", gin.WrapF(pprof.Symbol))
	group.POST("/symbol", gin.WrapF(pprof.Symbol))
	group.GET("/trace", gin.WrapF(pprof.Trace))
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		group.GET("/"+name, gin.WrapH(pprof.Handler(name)))
	}
}
