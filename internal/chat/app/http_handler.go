package app

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"ephemeral_chat/internal/chat/domain"
	"ephemeral_chat/internal/chat/repository"
	"ephemeral_chat/pkg"
	"ephemeral_chat/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatHTTPHandler REST side of the chat service
type ChatHTTPHandler struct {
	messageUC   *MessageUseCase
	attachments repository.AttachmentStore
	maxUpload   int64
}

// NewChatHTTPHandler create ChatHTTPHandler, maxUpload in bytes
func NewChatHTTPHandler(messageUC *MessageUseCase, attachments repository.AttachmentStore, maxUpload int64) *ChatHTTPHandler {
	return &ChatHTTPHandler{
		messageUC:   messageUC,
		attachments: attachments,
		maxUpload:   maxUpload,
	}
}

// GetMessages godoc
// @Summary List active messages of a room
// @Description Returns every message of the room that has not expired, oldest first
// @Tags Chat
// @Produce json
// @Param room query string false "Room name" default(general)
// @Success 200 {array} domain.Message
// @Failure 500 {object} map[string]string "Failed to load messages"
// @Router /messages [get]
func (h *ChatHTTPHandler) GetMessages(c *fiber.Ctx) error {
	room := c.Query("room", domain.DefaultRoom)
	msgs, err := h.messageUC.History(c.UserContext(), room)
	if err != nil {
		logger.Log.Error("load messages failed", zap.String("room", room), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load messages"})
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(msgs)
}

// Upload godoc
// @Summary Upload an attachment to a room
// @Description Stores the file and posts an image, audio or file message that points at it
// @Tags Chat
// @Accept multipart/form-data
// @Produce json
// @Param username formData string true "Sender"
// @Param room formData string true "Room name"
// @Param file formData file true "Attachment"
// @Success 200 {object} domain.Message
// @Failure 400 {object} map[string]string "Missing required fields"
// @Failure 413 {object} map[string]string "File too large"
// @Failure 500 {object} map[string]string "Failed to save file record"
// @Router /upload [post]
func (h *ChatHTTPHandler) Upload(c *fiber.Ctx) error {
	username := c.FormValue("username")
	room := c.FormValue("room")

	fileHeader, err := c.FormFile("file")
	if err != nil || pkg.AnyBlank(username, room) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Missing required fields"})
	}
	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		return c.Status(http.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File too large"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Log.Errorf("Open file failed", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to open file"})
	}
	defer file.Close()

	contentType := fileHeader.Header.Get(fiber.HeaderContentType)
	name := uuid.New().String() + strings.ToLower(filepath.Ext(fileHeader.Filename))

	ctx := c.UserContext()
	ref, err := h.attachments.Save(ctx, name, file, fileHeader.Size, contentType)
	if err != nil {
		logger.Log.Error("save attachment failed", zap.String("name", name), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save file"})
	}

	msg, err := h.messageUC.Attach(ctx, username, room, DeriveType(contentType), ref)
	if err != nil {
		logger.Log.Error("insert attachment message failed", zap.String("room", room), zap.String("ref", ref), zap.Error(err))
		if rmErr := h.attachments.Remove(ctx, ref); rmErr != nil {
			logger.Log.Error("remove unsaved attachment failed", zap.String("ref", ref), zap.Error(rmErr))
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save file record"})
	}
	return c.JSON(msg)
}

// GetAttachment godoc
// @Summary Download an attachment
// @Tags Chat
// @Param name path string true "Object name"
// @Success 200 {file} binary
// @Failure 404 {string} string "Not Found"
// @Router /uploads/{name} [get]
func (h *ChatHTTPHandler) GetAttachment(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return c.SendStatus(http.StatusNotFound)
	}
	if _, err := repository.ObjectName(name); err != nil {
		return c.SendStatus(http.StatusNotFound)
	}

	rc, err := h.attachments.Open(c.UserContext(), name)
	if err != nil {
		logger.Log.Debug("open attachment failed", zap.String("name", name), zap.Error(err))
		return c.SendStatus(http.StatusNotFound)
	}

	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	// fasthttp closes rc once the body is written
	return c.SendStream(rc)
}

// ConnectCheck check chat service start
// @Summary Health check
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging for a service
// @Tags Shared
// @Param service query string true "Service name"
// @Param status query bool true "Debug status"
// @Success 200 {string} string "Service debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	service := c.Query("service")
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("service", service), zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("service[%s]: debug mode is : %t", service, status))
}
