// Package server serves the browser chat page and the session JSON API.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/imaging"
	"github.com/papercomputeco/lenschat/pkg/llm"
	"github.com/papercomputeco/lenschat/pkg/metrics"
	"github.com/papercomputeco/lenschat/pkg/session"
	"github.com/papercomputeco/lenschat/pkg/transcript"
)

//go:embed static/index.html
var indexHTML []byte

// multipartOverhead is the body allowance on top of MaxImageBytes for
// multipart framing.
const multipartOverhead = 64 << 10

// Server owns the fiber app, the session manager and the replier every
// session submits through.
type Server struct {
	config   Config
	sessions *session.Manager
	replier  session.Replier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	server   *fiber.App
}

// New creates a Server. A nil m gets a fresh registry.
func New(config Config, sessions *session.Manager, replier session.Replier, m *metrics.Metrics, logger *zap.Logger) *Server {
	if m == nil {
		m = metrics.NewMetrics()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		BodyLimit:             config.MaxImageBytes + multipartOverhead,
	})

	s := &Server{
		config:   config,
		sessions: sessions,
		replier:  replier,
		metrics:  m,
		logger:   logger,
		server:   app,
	}

	app.Get("/", s.handleIndex)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api/sessions")
	api.Post("/", s.handleCreateSession)
	api.Delete("/:id", s.handleEndSession)
	api.Get("/:id/turns", s.handleListTurns)
	api.Get("/:id/turns/:index/image", s.handleTurnImage)
	api.Post("/:id/image", s.handleUploadImage)
	api.Get("/:id/image", s.handlePendingImage)
	api.Delete("/:id/image", s.handleClearImage)
	api.Post("/:id/messages", s.handlePostMessage)

	return s
}

// Run starts the idle-session sweeper and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting lenschat server",
		zap.String("listen", s.config.ListenAddr),
		zap.Int("max_image_bytes", s.config.MaxImageBytes),
	)

	go s.sessions.Run(ctx, s.config.sweepInterval())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	return s.server.Listen(s.config.ListenAddr)
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.server
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.sessions.Create()
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	if err := s.sessions.End(c.Params("id")); err != nil {
		return s.sessionError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TurnResponse is the JSON form of a transcript turn.
type TurnResponse struct {
	Index      int       `json:"index"`
	Hash       string    `json:"hash"`
	ParentHash *string   `json:"parent_hash,omitempty"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	HasImage   bool      `json:"has_image"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptResponse lists every turn of a session in order.
type TranscriptResponse struct {
	SessionID string         `json:"session_id"`
	Count     int            `json:"count"`
	Turns     []TurnResponse `json:"turns"`
}

func toTurnResponse(sessionID string, index int, turn transcript.Turn) TurnResponse {
	resp := TurnResponse{
		Index:      index,
		Hash:       turn.Hash,
		ParentHash: turn.ParentHash,
		Role:       string(turn.Role),
		Text:       turn.Text,
		HasImage:   turn.HasImage(),
		CreatedAt:  turn.CreatedAt,
	}
	if resp.HasImage {
		resp.ImageURL = fmt.Sprintf("/api/sessions/%s/turns/%d/image", sessionID, index)
	}
	return resp
}

func (s *Server) handleListTurns(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	turns := sess.Transcript().All()
	out := make([]TurnResponse, len(turns))
	for i, turn := range turns {
		out[i] = toTurnResponse(sess.ID, i, turn)
	}

	return c.JSON(TranscriptResponse{
		SessionID: sess.ID,
		Count:     len(out),
		Turns:     out,
	})
}

func (s *Server) handleTurnImage(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "index must be an integer"})
	}

	turn, ok := sess.Transcript().Get(index)
	if !ok || !turn.HasImage() {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "image not found"})
	}

	c.Type("png")
	return c.Send(turn.Image)
}

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// ImageResponse acknowledges an accepted upload.
type ImageResponse struct {
	Status string `json:"status"`
	Bytes  int    `json:"bytes"`
}

func (s *Server) handleUploadImage(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return s.rejectUpload(c, fiber.StatusBadRequest, "multipart field \"image\" is required")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return s.rejectUpload(c, fiber.StatusUnsupportedMediaType, "only png, jpg and jpeg uploads are accepted")
	}

	if file.Size > int64(s.config.MaxImageBytes) {
		return s.rejectUpload(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.config.MaxImageBytes))
	}

	f, err := file.Open()
	if err != nil {
		s.logger.Error("failed to open upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(s.config.MaxImageBytes)+1))
	if err != nil {
		s.logger.Error("failed to read upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	if err := sess.SetImage(data); err != nil {
		s.logger.Warn("image upload rejected",
			zap.String("session_id", sess.ID),
			zap.String("filename", file.Filename),
			zap.Error(err),
		)
		status := fiber.StatusUnprocessableEntity
		switch {
		case errors.Is(err, imaging.ErrUnsupportedFormat):
			status = fiber.StatusUnsupportedMediaType
		case errors.Is(err, imaging.ErrImageTooLarge):
			status = fiber.StatusRequestEntityTooLarge
		}
		return s.rejectUpload(c, status, err.Error())
	}

	s.metrics.ImageUploaded("accepted")
	return c.JSON(ImageResponse{Status: "ok", Bytes: len(sess.PendingImage())})
}

func (s *Server) rejectUpload(c *fiber.Ctx, status int, message string) error {
	s.metrics.ImageUploaded("rejected")
	return c.Status(status).JSON(llm.ErrorResponse{Error: message})
}

func (s *Server) handlePendingImage(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	image := sess.PendingImage()
	if image == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "no pending image"})
	}

	c.Type("png")
	return c.Send(image)
}

func (s *Server) handleClearImage(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	sess.ClearImage()
	return c.SendStatus(fiber.StatusNoContent)
}

// MessageRequest is the body of POST /api/sessions/:id/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse carries the rendered reply and the turns it appended.
type MessageResponse struct {
	Reply  string         `json:"reply"`
	Kind   string         `json:"kind"`
	Detail string         `json:"detail,omitempty"`
	Turns  []TurnResponse `json:"turns"`
}

func (s *Server) handlePostMessage(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	exchange, err := sess.Submit(c.UserContext(), s.replier, req.Text)
	if err != nil {
		s.logger.Error("submit failed", zap.String("session_id", sess.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	resp := MessageResponse{
		Reply:  exchange.Result.Display(),
		Kind:   exchange.Result.Kind.String(),
		Detail: exchange.Result.Detail,
		Turns:  []TurnResponse{},
	}

	if !exchange.Appended() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	}

	resp.Turns = append(resp.Turns,
		toTurnResponse(sess.ID, exchange.Index, exchange.User),
		toTurnResponse(sess.ID, exchange.Index+1, exchange.Assistant),
	)

	if exchange.Result.Kind != completion.KindOK {
		s.logger.Warn("exchange failed",
			zap.String("session_id", sess.ID),
			zap.String("kind", resp.Kind),
			zap.String("detail", llm.Preview(resp.Detail, 200)),
		)
	}

	return c.JSON(resp)
}

func (s *Server) sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "session not found"})
	}
	s.logger.Error("session lookup failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
}
