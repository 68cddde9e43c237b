package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/session"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultMaxImportBytes    = 8 << 20
	defaultHeartbeatInterval = 25 * time.Second

	reasonInvalidRequest  = "invalid_request"
	reasonPayloadTooLarge = "payload_too_large"
	reasonInternal        = "internal_error"
)

var (
	errMissingSession  = errors.New("session service dependency required")
	errMissingRealtime = errors.New("realtime dispatcher dependency required")
)

var statusByReason = map[string]int{
	reasonInvalidRequest:  http.StatusBadRequest,
	"empty_name":          http.StatusBadRequest,
	"unknown_hero":        http.StatusBadRequest,
	"missing_deck_id":     http.StatusBadRequest,
	"same_deck":           http.StatusBadRequest,
	"winner_not_in_match": http.StatusBadRequest,
	"invalid_document":    http.StatusBadRequest,
	"malformed_match":     http.StatusBadRequest,
	"duplicate_id":        http.StatusBadRequest,
	"invalid_payload":     http.StatusBadRequest,
	"no_payload":          http.StatusBadRequest,
	"deck_not_found":      http.StatusNotFound,
	"nothing_to_undo":     http.StatusConflict,
	"undo_deck_deleted":   http.StatusConflict,
	"nothing_to_share":    http.StatusConflict,
	reasonPayloadTooLarge: http.StatusRequestEntityTooLarge,
}

type Dependencies struct {
	Session           *session.Service
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	MaxImportBytes    int64
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Session == nil {
		return nil, errMissingSession
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxImportBytes := deps.MaxImportBytes
	if maxImportBytes <= 0 {
		maxImportBytes = defaultMaxImportBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		session:        deps.Session,
		realtime:       deps.Realtime,
		logger:         logger,
		maxImportBytes: maxImportBytes,
		heartbeat:      heartbeat,
	}

	router.GET("/status", handler.handleStatus)
	router.GET("/heroes", handler.handleHeroes)
	router.GET("/events", handler.handleEvents)

	router.GET("/decks", handler.handleListDecks)
	router.POST("/decks", handler.handleAddDeck)
	router.PATCH("/decks/:id", handler.handleUpdateDeck)
	router.DELETE("/decks/:id", handler.handleDeleteDeck)

	router.GET("/matches", handler.handleListMatches)
	router.POST("/matches", handler.handleRecordMatch)
	router.POST("/matches/undo", handler.handleUndoMatch)

	router.DELETE("/data", handler.handleClearAll)
	router.GET("/export", handler.handleExport)
	router.POST("/import", handler.handleImportFile)
	router.POST("/import/link", handler.handleImportLink)
	router.GET("/share", handler.handleShare)
	router.GET("/share/qr.png", handler.handleShareQR)

	return router, nil
}

func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	session        *session.Service
	realtime       *RealtimeDispatcher
	logger         *zap.Logger
	maxImportBytes int64
	heartbeat      time.Duration
}

type deckRequestPayload struct {
	Name string `json:"name"`
	Hero string `json:"hero"`
}

type deckUpdatePayload struct {
	Name *string `json:"name"`
	Hero *string `json:"hero"`
}

type matchRequestPayload struct {
	Deck1ID  string `json:"deck1Id"`
	Deck2ID  string `json:"deck2Id"`
	WinnerID string `json:"winnerId"`
}

type linkImportPayload struct {
	Link string `json:"link"`
}

type matchesResponsePayload struct {
	Matches []tracker.DisplayMatch `json:"matches"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

func (h *httpHandler) handleHeroes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"heroes": tracker.Heroes})
}

func (h *httpHandler) handleListDecks(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Standings())
}

func (h *httpHandler) handleAddDeck(c *gin.Context) {
	var request deckRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, err)
		return
	}
	deck, err := h.session.AddDeck(request.Name, request.Hero)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deck)
}

func (h *httpHandler) handleUpdateDeck(c *gin.Context) {
	var request deckUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, err)
		return
	}
	if request.Name == nil && request.Hero == nil {
		h.invalidRequest(c, errors.New("nothing to update"))
		return
	}
	deck, err := h.session.UpdateDeck(c.Param("id"), tracker.DeckUpdate{Name: request.Name, Hero: request.Hero})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deck)
}

func (h *httpHandler) handleDeleteDeck(c *gin.Context) {
	if err := h.session.DeleteDeck(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListMatches(c *gin.Context) {
	history := h.session.History()
	if history == nil {
		history = []tracker.DisplayMatch{}
	}
	c.JSON(http.StatusOK, matchesResponsePayload{Matches: history})
}

func (h *httpHandler) handleRecordMatch(c *gin.Context) {
	var request matchRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, err)
		return
	}
	match, err := h.session.RecordMatch(request.Deck1ID, request.Deck2ID, request.WinnerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

func (h *httpHandler) handleUndoMatch(c *gin.Context) {
	match, err := h.session.UndoLastMatch()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *httpHandler) handleClearAll(c *gin.Context) {
	if err := h.session.ClearAll(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	var buffer bytes.Buffer
	if err := h.session.Export(&buffer); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(h.session.ExportFileName()))
	c.Data(http.StatusOK, "application/json", buffer.Bytes())
}

func (h *httpHandler) handleImportFile(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": reasonPayloadTooLarge, "code": "server.import." + reasonPayloadTooLarge})
			return
		}
		h.invalidRequest(c, err)
		return
	}
	result, err := h.session.ImportFile(c.Request.Context(), bytes.NewReader(body))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleImportLink(c *gin.Context) {
	var request linkImportPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Link) == "" {
		h.invalidRequest(c, err)
		return
	}
	result, err := h.session.ImportFragment(c.Request.Context(), request.Link)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleShare(c *gin.Context) {
	share, err := h.session.Share()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *httpHandler) handleShareQR(c *gin.Context) {
	image, _, err := h.session.ShareQR()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(h.session.QRFileName()))
	c.Data(http.StatusOK, "image/png", image)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, eventPayload(message))
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
}

func eventPayload(message RealtimeMessage) gin.H {
	payload := gin.H{
		"decks":     message.Decks,
		"matches":   message.Matches,
		"timestamp": message.Timestamp.UTC().Format(time.RFC3339),
	}
	if message.Reason != "" {
		payload["reason"] = message.Reason
	}
	return payload
}

func (h *httpHandler) invalidRequest(c *gin.Context, err error) {
	if err != nil {
		h.logger.Debug("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": reasonInvalidRequest, "code": "server." + reasonInvalidRequest})
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	code := ""
	reason := reasonInternal
	var serviceErr *session.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
		reason = code[strings.LastIndex(code, ".")+1:]
	}
	status, known := statusByReason[reason]
	if !known {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": reason, "code": code})
}

func attachment(fileName string) string {
	return fmt.Sprintf("attachment; filename=%q", fileName)
}
