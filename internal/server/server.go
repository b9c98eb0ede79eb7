package server

import (
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainkeep/chainkeep/internal/registry"
	"github.com/chainkeep/chainkeep/internal/validate"
)

// Server is the thin HTTP boundary over the registry and the validation
// service. All ledger semantics live below it.
type Server struct {
	registry  *registry.Registry
	validator *validate.Service
	logger    hclog.Logger
	engine    *gin.Engine
}

func New(reg *registry.Registry, validator *validate.Service, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		registry:  reg,
		validator: validator,
		logger:    logger.Named("http"),
		engine:    engine,
	}
	s.registerRoutes()
	return s
}

// Router returns the handler for an http.Server to run.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		orgs := v1.Group("/organizations")
		{
			orgs.POST("", s.handleCreateOrganization)
			orgs.GET("", s.handleListOrganizations)
			orgs.GET("/:id", s.handleGetOrganization)
			orgs.PATCH("/:id", s.handleUpdateOrganization)
			orgs.DELETE("/:id", s.handleDeleteOrganization)
			orgs.GET("/:id/groups", s.handleListGroupsByOrganization)
			orgs.GET("/:id/validate", s.handleValidateOrganization)
		}

		groups := v1.Group("/groups")
		{
			groups.POST("", s.handleCreateGroup)
			groups.GET("", s.handleListGroups)
			groups.GET("/:id", s.handleGetGroup)
			groups.PATCH("/:id", s.handleUpdateGroup)
			groups.DELETE("/:id", s.handleDeleteGroup)
			groups.GET("/:id/members", s.handleListMembersByGroup)
			groups.GET("/:id/validate", s.handleValidateGroup)
		}

		members := v1.Group("/members")
		{
			members.POST("", s.handleCreateMember)
			members.GET("", s.handleListMembers)
			members.GET("/:id", s.handleGetMember)
			members.PATCH("/:id", s.handleUpdateMember)
			members.DELETE("/:id", s.handleDeleteMember)
			members.GET("/:id/validate", s.handleValidateMember)

			members.POST("/:id/attendance", s.handleAppendAttendance)
			members.GET("/:id/attendance", s.handleAttendance)
			members.GET("/:id/attendance/stats", s.handleAttendanceStats)
		}

		v1.GET("/validate", s.handleValidateSystem)
	}
}
