package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainkeep/chainkeep/internal/entity"
	"github.com/chainkeep/chainkeep/internal/registry"
)

type createOrganizationRequest struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"display_name" binding:"required"`
	Fields      map[string]interface{} `json:"fields"`
}

type createGroupRequest struct {
	ID             string                 `json:"id"`
	DisplayName    string                 `json:"display_name" binding:"required"`
	OrganizationID string                 `json:"organization_id" binding:"required"`
	Fields         map[string]interface{} `json:"fields"`
}

type createMemberRequest struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"display_name" binding:"required"`
	GroupID     string                 `json:"group_id" binding:"required"`
	Fields      map[string]interface{} `json:"fields"`
}

type updateRequest struct {
	Patch map[string]interface{} `json:"patch" binding:"required"`
}

type attendanceRequest struct {
	Date   string `json:"date" binding:"required"`
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// writeError maps the registry's error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrInput):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	orgs, groups, members := s.registry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"organizations": orgs,
		"groups":        groups,
		"members":       members,
	})
}

func (s *Server) handleCreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.registry.CreateOrganization(req.ID, req.DisplayName, req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.registry.CreateGroup(req.ID, req.DisplayName, req.OrganizationID, req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleCreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.registry.CreateMember(req.ID, req.DisplayName, req.GroupID, req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleGet(c *gin.Context, kind entity.Kind) {
	info, err := s.registry.Get(kind, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleGetOrganization(c *gin.Context) { s.handleGet(c, entity.KindOrganization) }
func (s *Server) handleGetGroup(c *gin.Context)        { s.handleGet(c, entity.KindGroup) }
func (s *Server) handleGetMember(c *gin.Context)       { s.handleGet(c, entity.KindMember) }

func (s *Server) handleList(c *gin.Context, kind entity.Kind) {
	infos, err := s.registry.List(kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) handleListOrganizations(c *gin.Context) { s.handleList(c, entity.KindOrganization) }
func (s *Server) handleListGroups(c *gin.Context)        { s.handleList(c, entity.KindGroup) }
func (s *Server) handleListMembers(c *gin.Context)       { s.handleList(c, entity.KindMember) }

func (s *Server) handleListGroupsByOrganization(c *gin.Context) {
	infos, err := s.registry.ListByParent(entity.KindGroup, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) handleListMembersByGroup(c *gin.Context) {
	infos, err := s.registry.ListByParent(entity.KindMember, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) handleUpdate(c *gin.Context, kind entity.Kind) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	var err error
	switch kind {
	case entity.KindOrganization:
		err = s.registry.UpdateOrganization(id, req.Patch)
	case entity.KindGroup:
		err = s.registry.UpdateGroup(id, req.Patch)
	default:
		err = s.registry.UpdateMember(id, req.Patch)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	info, err := s.registry.Get(kind, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleUpdateOrganization(c *gin.Context) { s.handleUpdate(c, entity.KindOrganization) }
func (s *Server) handleUpdateGroup(c *gin.Context)        { s.handleUpdate(c, entity.KindGroup) }
func (s *Server) handleUpdateMember(c *gin.Context)       { s.handleUpdate(c, entity.KindMember) }

func (s *Server) handleDelete(c *gin.Context, kind entity.Kind) {
	id := c.Param("id")
	var err error
	switch kind {
	case entity.KindOrganization:
		err = s.registry.DeleteOrganization(id)
	case entity.KindGroup:
		err = s.registry.DeleteGroup(id)
	default:
		err = s.registry.DeleteMember(id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": entity.StatusDeleted})
}

func (s *Server) handleDeleteOrganization(c *gin.Context) { s.handleDelete(c, entity.KindOrganization) }
func (s *Server) handleDeleteGroup(c *gin.Context)        { s.handleDelete(c, entity.KindGroup) }
func (s *Server) handleDeleteMember(c *gin.Context)       { s.handleDelete(c, entity.KindMember) }

func (s *Server) handleAppendAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := entity.AttendanceEntry{Date: req.Date, Status: req.Status, Note: req.Note}
	if err := s.registry.AppendAttendance(c.Param("id"), entry); err != nil {
		writeError(c, err)
		return
	}

	record, err := s.registry.AttendanceByDate(c.Param("id"), req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// handleAttendance returns the full history, or a single record when a
// ?date= query is given.
func (s *Server) handleAttendance(c *gin.Context) {
	if date := c.Query("date"); date != "" {
		record, err := s.registry.AttendanceByDate(c.Param("id"), date)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
		return
	}

	records, err := s.registry.AttendanceHistory(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []entity.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleAttendanceStats(c *gin.Context) {
	stats, err := s.registry.AttendanceStats(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleValidateOrganization(c *gin.Context) {
	rep, err := s.validator.ValidateOrganization(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleValidateGroup(c *gin.Context) {
	rep, err := s.validator.ValidateGroup(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleValidateMember(c *gin.Context) {
	rep, err := s.validator.ValidateMember(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleValidateSystem(c *gin.Context) {
	system, err := s.validator.ValidateSystem()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, system)
}
