package api

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/andi/stepline/backend/bridge"
	"github.com/andi/stepline/backend/config"
	"github.com/andi/stepline/backend/database"
	"github.com/andi/stepline/backend/gateway"
	"github.com/andi/stepline/backend/models"
	"github.com/andi/stepline/backend/session"
	"github.com/andi/stepline/backend/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
)

// Server represents the HTTP API server
type Server struct {
	app      *fiber.App
	db       *database.DB
	stepRepo *database.StepRepo
	sessions *session.Manager
	bridge   *bridge.Bridge
	wsHub    *WebSocketHub
	validate *validator.Validate
	logDir   string

	gatewayMu sync.RWMutex
	templates *gateway.TemplateClient
	tables    *gateway.TableClient
}

// New creates a new API server
func New(db *database.DB, sessions *session.Manager, b *bridge.Bridge, cfg *config.Config) *Server {
	// Initialize HTML template engine
	engine := html.New("./frontend/templates", ".html")

	app := fiber.New(fiber.Config{
		Views:        engine,
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(recover.New())

	// Configure logger to write only to file
	accessLogPath := filepath.Join(cfg.Logging.Dir, "access.log")
	accessLogFile, err := os.OpenFile(accessLogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Warning: Failed to open access log file: %v", err)
		app.Use(logger.New(logger.Config{
			Output: io.Discard,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Output: accessLogFile,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	server := &Server{
		app:       app,
		db:        db,
		stepRepo:  database.NewStepRepo(db),
		sessions:  sessions,
		bridge:    b,
		validate:  validator.New(),
		logDir:    cfg.Logging.Dir,
		templates: gateway.NewTemplateClient(cfg.Services.TemplateSearchURL, cfg.Services.FetchTimeout.Std()),
		tables:    gateway.NewTableClient(cfg.Services.TableDataURL, cfg.Services.FetchTimeout.Std()),
	}
	server.wsHub = NewWebSocketHub(b)

	server.setupRoutes()
	return server
}

// ApplyConfig swaps out hot-reloadable settings (external service URLs and
// timeouts) on a running server.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.gatewayMu.Lock()
	defer s.gatewayMu.Unlock()
	s.templates = gateway.NewTemplateClient(cfg.Services.TemplateSearchURL, cfg.Services.FetchTimeout.Std())
	s.tables = gateway.NewTableClient(cfg.Services.TableDataURL, cfg.Services.FetchTimeout.Std())
}

func (s *Server) templateClient() *gateway.TemplateClient {
	s.gatewayMu.RLock()
	defer s.gatewayMu.RUnlock()
	return s.templates
}

func (s *Server) tableClient() *gateway.TableClient {
	s.gatewayMu.RLock()
	defer s.gatewayMu.RUnlock()
	return s.tables
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	// Home page with server-side rendering
	s.app.Get("/", s.renderIndex)

	// Static files
	s.app.Static("/static", "./frontend/static")

	// WebSocket staleness channel for table views
	s.app.Get("/ws", s.HandleWebSocket)

	// API routes
	api := s.app.Group("/api")

	// Step templates
	api.Get("/templates", s.searchTemplates)

	// Committed step exposed to the host order form
	api.Get("/orders/:orderId/step", s.getStepData)
	api.Post("/orders/:orderId/step", s.setStepData)
	api.Delete("/orders/:orderId/step", s.clearSteps)
	api.Get("/orders/:orderId/machines", s.getMachineIDs)

	// Editing session
	api.Post("/orders/:orderId/draft", s.seedDraft)
	api.Post("/orders/:orderId/draft/reenter", s.reenterEdit)
	api.Get("/orders/:orderId/draft", s.getDraft)
	api.Put("/orders/:orderId/draft/assignments/:index", s.updateField)
	api.Put("/orders/:orderId/draft/assignments/:index/status", s.overrideStatus)
	api.Delete("/orders/:orderId/draft/assignments/:index/status", s.clearOverride)
	api.Post("/orders/:orderId/draft/validate", s.validateDraft)
	api.Post("/orders/:orderId/draft/commit", s.commitDraft)
	api.Delete("/orders/:orderId/draft", s.discardDraft)

	// Notes (buffer or committed snapshot, whichever is in play)
	api.Put("/orders/:orderId/assignments/:index/note", s.saveNote)

	// Production table view + push channel
	api.Get("/orders/:orderId/machines/:machineId/table", s.getTableData)
	api.Get("/orders/:orderId/updates", s.getLastUpdate)
	api.Post("/orders/:orderId/events", s.ingestEvent)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	log.Printf("Starting HTTP server on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.wsHub.Stop()
	return s.app.Shutdown()
}

// Error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Incomplete []int  `json:"incomplete,omitempty"`
}

// Success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorHandler handles fiber errors
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

// workflowError maps workflow-core errors onto inline-reportable responses.
// None of these are fatal; save stays blocked until the user fixes the
// draft.
func workflowError(c *fiber.Ctx, err error) error {
	var incomplete *workflow.IncompleteAssignmentError
	var fieldErr *workflow.FieldError

	switch {
	case errors.Is(err, workflow.ErrEmptyStep):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &incomplete):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:      incomplete.Error(),
			Incomplete: incomplete.Indices,
		})
	case errors.As(err, &fieldErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fieldErr.Error()})
	case errors.Is(err, workflow.ErrNoDraft), errors.Is(err, workflow.ErrNoCommittedStep):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
}

// ============== Page Rendering ==============

func (s *Server) renderIndex(c *fiber.Ctx) error {
	return c.Render("index", fiber.Map{
		"Title": "Stepline - Manufacturing Step Workflow",
	})
}

// getSession returns the order's session, hydrating its committed store
// from the database the first time the order is touched.
func (s *Server) getSession(orderID string) (*workflow.Session, error) {
	sess := s.sessions.Get(orderID)
	if sess.StepData() == nil && !sess.Editing() {
		step, err := s.stepRepo.GetByOrder(orderID)
		if err != nil {
			return nil, err
		}
		if step != nil {
			sess.SetStepData(step)
		}
	}
	return sess, nil
}

// ============== Template Handlers ==============

func (s *Server) searchTemplates(c *fiber.Ctx) error {
	name := c.Query("name", "")
	if name == "" {
		return c.Status(400).JSON(ErrorResponse{Error: "name is required"})
	}

	templates, err := s.templateClient().Search(c.Context(), name)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(templates)
}

// ============== Committed Step Handlers ==============

func (s *Server) getStepData(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}

	step := sess.StepData()
	if step == nil {
		return c.Status(404).JSON(ErrorResponse{Error: "no step for order"})
	}
	return c.JSON(step)
}

// SetStepRequest carries a committed step pushed by the host order form.
type SetStepRequest struct {
	Name        string                     `json:"name" validate:"required"`
	TemplateID  string                     `json:"template_id"`
	Assignments []models.MachineAssignment `json:"assignments" validate:"min=1"`
}

func (s *Server) setStepData(c *fiber.Ctx) error {
	var req SetStepRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: err.Error()})
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}

	step := &models.Step{Name: req.Name, TemplateID: req.TemplateID, Assignments: req.Assignments}
	sess.SetStepData(step)
	return c.JSON(sess.StepData())
}

func (s *Server) clearSteps(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	sess := s.sessions.Get(orderID)
	sess.ClearSteps()

	return c.JSON(SuccessResponse{Message: "Steps cleared"})
}

func (s *Server) getMachineIDs(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	ids := sess.MachineIDs()
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(ids)
}

// ============== Draft Handlers ==============

// SeedRequest carries the template a new editing draft is seeded from.
type SeedRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Machines   []struct {
		MachineID   string `json:"machine_id" validate:"required"`
		MachineType string `json:"machine_type" validate:"required"`
		MachineName string `json:"machine_name" validate:"required"`
	} `json:"machines" validate:"min=1,dive"`
}

func (s *Server) seedDraft(c *fiber.Ctx) error {
	var req SeedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: err.Error()})
	}

	tpl := models.StepTemplate{
		ID:       req.TemplateID,
		Name:     req.Name,
		Machines: make([]models.TemplateMachine, len(req.Machines)),
	}
	for i, m := range req.Machines {
		tpl.Machines[i] = models.TemplateMachine{
			MachineID:   m.MachineID,
			MachineType: m.MachineType,
			MachineName: m.MachineName,
		}
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	sess.SeedFromTemplate(tpl)
	return c.Status(201).JSON(sess.Draft())
}

func (s *Server) reenterEdit(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.ReenterEdit(); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(sess.Draft())
}

func (s *Server) getDraft(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	draft := sess.Draft()
	if draft == nil {
		return c.Status(404).JSON(ErrorResponse{Error: workflow.ErrNoDraft.Error()})
	}
	return c.JSON(draft)
}

// UpdateFieldRequest edits one field of one draft assignment.
type UpdateFieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

func (s *Server) updateField(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid assignment index"})
	}

	var req UpdateFieldRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: err.Error()})
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.UpdateField(index, models.Field(req.Field), req.Value); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(sess.Draft())
}

// OverrideStatusRequest manually forces an assignment status.
type OverrideStatusRequest struct {
	Value  string `json:"value" validate:"required,oneof=paused error"`
	Reason string `json:"reason"`
}

func (s *Server) overrideStatus(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid assignment index"})
	}

	var req OverrideStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: err.Error()})
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.OverrideStatus(index, models.StatusValue(req.Value), req.Reason); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(sess.Draft())
}

func (s *Server) clearOverride(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid assignment index"})
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.ClearOverride(index); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(sess.Draft())
}

func (s *Server) validateDraft(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.Validate(); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(SuccessResponse{Message: "Draft is valid"})
}

func (s *Server) commitDraft(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	sess, err := s.getSession(orderID)
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}

	step, err := sess.Commit()
	if err != nil {
		return workflowError(c, err)
	}

	// Persist the committed step into the parent order
	if err := s.stepRepo.Save(orderID, step); err != nil {
		log.Printf("Failed to persist committed step for order %s: %v", orderID, err)
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	sess.SetStepData(step)

	return c.JSON(step)
}

func (s *Server) discardDraft(c *fiber.Ctx) error {
	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	sess.Discard()
	return c.JSON(SuccessResponse{Message: "Draft discarded"})
}

// NoteRequest updates one assignment's note.
type NoteRequest struct {
	Text string `json:"text"`
}

func (s *Server) saveNote(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid assignment index"})
	}

	var req NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}

	sess, err := s.getSession(c.Params("orderId"))
	if err != nil {
		return c.Status(500).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := sess.SaveNote(index, req.Text); err != nil {
		return workflowError(c, err)
	}
	return c.JSON(SuccessResponse{Message: "Note saved"})
}

// ============== Table View / Push Channel Handlers ==============

func (s *Server) getTableData(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	machineID := c.Params("machineId")

	data, err := s.tableClient().Fetch(c.Context(), orderID, machineID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(data)
}

func (s *Server) getLastUpdate(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	t, ok := s.bridge.LastUpdate(orderID)

	resp := fiber.Map{"order_id": orderID, "has_updates": ok}
	if ok {
		resp["last_update"] = t.Format(time.RFC3339)
	}
	return c.JSON(resp)
}

// EventRequest is one push event delivered by the production tracker.
type EventRequest struct {
	Type      string `json:"type" validate:"required"`
	MachineID string `json:"machine_id"`
}

func (s *Server) ingestEvent(c *fiber.Ctx) error {
	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: "Invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(400).JSON(ErrorResponse{Error: err.Error()})
	}

	evt := models.PushEvent{
		Type:      models.EventType(req.Type),
		OrderID:   c.Params("orderId"),
		MachineID: req.MachineID,
	}
	if !evt.Type.Known() {
		return c.Status(400).JSON(ErrorResponse{Error: "unknown event type"})
	}

	s.bridge.Publish(evt)
	return c.Status(202).JSON(SuccessResponse{Message: "Event accepted"})
}
