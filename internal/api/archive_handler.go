package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/storage"
)

const maxArchiveLimit = 1000

// ArchiveHandler 归档查询API处理器
type ArchiveHandler struct {
	repo   storage.Archive
	logger *zap.Logger
}

func NewArchiveHandler(repo storage.Archive, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{repo: repo, logger: logger}
}

// ListMessages 已归档消息
// @Param channel query int false "频道"
// @Param since query string false "RFC3339 起始时间"
// @Param limit query int false "条数，默认100"
// @Router /api/archive/messages [get]
func (h *ArchiveHandler) ListMessages(c *gin.Context) {
	var q storage.MessageQuery
	if s := c.Query("channel"); s != "" {
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
			return
		}
		ch := int16(v)
		q.Channel = &ch
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		q.Since = t
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = min(n, maxArchiveLimit)
	}

	msgs, err := h.repo.ListMessages(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("list archived messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// ListContacts 已归档联系人
// @Router /api/archive/contacts [get]
func (h *ArchiveHandler) ListContacts(c *gin.Context) {
	contacts, err := h.repo.ListContacts(c.Request.Context())
	if err != nil {
		h.logger.Error("list archived contacts failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "count": len(contacts)})
}
