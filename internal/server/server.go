package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"daybrief/internal/brief"
	"daybrief/internal/config"
	"daybrief/internal/lifecycle"
	"daybrief/internal/schedule"
	"daybrief/internal/synth"
)

// RefreshRequest is the delivery API request body. Candidates, when present,
// bind scripted synthesizer output for this run (test-double hook).
type RefreshRequest struct {
	Schedule    *config.ScheduleConfig `json:"schedule,omitempty"`
	TriggerType string                 `json:"trigger_type,omitempty"`
	MissionHint string                 `json:"mission_hint,omitempty"`
	Evidence    []brief.EvidenceInput  `json:"evidence,omitempty"`
	Reaction    *OverrideRequest       `json:"reaction,omitempty"`
	Candidates  []json.RawMessage      `json:"candidates,omitempty"`
}

// OverrideRequest is a user reaction on the wire.
type OverrideRequest struct {
	Type            string `json:"type"`
	Note            string `json:"note,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Objective       string `json:"objective,omitempty"`
}

// RefreshResponse carries the resolved schedule, the scheduling decision,
// and, when the trigger fired, the settled brief with its view and telemetry.
type RefreshResponse struct {
	Schedule  config.ScheduleConfig `json:"schedule"`
	Decision  schedule.Decision     `json:"decision"`
	Result    *synth.Outcome        `json:"result,omitempty"`
	Writeback *OverrideWriteback    `json:"override,omitempty"`
}

// Server is the thin gin transport over the Service.
type Server struct {
	service  *Service
	schedule config.ScheduleConfig
	engine   *gin.Engine
	log      *zap.Logger
}

// New builds the HTTP surface. defaultSchedule is returned (clamped) when a
// request does not carry its own.
func New(service *Service, defaultSchedule config.ScheduleConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		service:  service,
		schedule: defaultSchedule.Clamp(),
		engine:   gin.New(),
		log:      log,
	}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api/brief")
	api.POST("/refresh", s.handleRefresh)
	api.POST("/override", s.handleOverride)
	api.GET("/current", s.handleCurrent)
	api.POST("/reset-mode", s.handleResetMode)
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleRefresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resolved := s.schedule
	if req.Schedule != nil {
		resolved = req.Schedule.Clamp()
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = schedule.TriggerUserRefresh
	}

	input := brief.Input{
		Workspace:   s.service.workspace,
		MissionHint: req.MissionHint,
		Evidence:    req.Evidence,
	}

	candidates, err := decodeCandidates(req.Candidates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test candidate payload"})
		return
	}

	var reaction *lifecycle.Override
	if req.Reaction != nil {
		reaction = toOverride(*req.Reaction)
	}

	result, err := s.service.Refresh(c.Request.Context(), triggerType, input, reaction, candidates)
	if err != nil {
		// Refresh itself is total; only a bad inline reaction lands here.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		Schedule:  resolved,
		Decision:  result.Decision,
		Result:    result.Outcome,
		Writeback: result.Writeback,
	})
}

func (s *Server) handleOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	wb, err := s.service.ApplyOverride(c.Request.Context(), *toOverride(req))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, wb)
	case errors.Is(err, lifecycle.ErrNotPresented):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "not_presented"})
	case errors.Is(err, lifecycle.ErrUnknownOverride):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "unknown_override"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleCurrent(c *gin.Context) {
	record := s.service.Record()
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleResetMode(c *gin.Context) {
	s.service.ResetMode(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"mode": string(schedule.ModeNormal)})
}

func toOverride(req OverrideRequest) *lifecycle.Override {
	return &lifecycle.Override{
		Type: lifecycle.OverrideType(req.Type),
		Note: req.Note,
		Payload: lifecycle.Payload{
			DurationMinutes: req.DurationMinutes,
			Objective:       req.Objective,
		},
	}
}

// decodeCandidates turns raw test-double payloads into JSON-like values. A
// JSON string is kept as a string so the scripted synthesizer can run it
// through the model-output decoder.
func decodeCandidates(raw []json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		var v any
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
