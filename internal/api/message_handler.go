package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
)

// SendMessageRequest 私聊发送请求
type SendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"` // 公钥 hex，至少 6 字节前缀
	Text      string `json:"text" binding:"required"`
	Attempt   uint8  `json:"attempt"`
	TxtType   uint8  `json:"txt_type"`
}

// SendMessage 发送私聊消息，返回设备分配的 ACK 校验码
// @Router /api/messages [post]
func (h *DeviceHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	recipient, err := buffer.FromHex(req.Recipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient"})
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	sent, err := d.SendTxtMsg(c.Request.Context(), companion.TextMessage{
		Type:      command.TxtType(req.TxtType),
		Attempt:   req.Attempt,
		Recipient: recipient,
		Text:      req.Text,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sent)
}

// SendChannelMessageRequest 频道发送请求
type SendChannelMessageRequest struct {
	Text    string `json:"text" binding:"required"`
	TxtType uint8  `json:"txt_type"`
}

// SendChannelMessage 发送频道消息
// @Router /api/channels/{idx}/messages [post]
func (h *DeviceHandler) SendChannelMessage(c *gin.Context) {
	idx, ok := channelParam(c)
	if !ok {
		return
	}
	var req SendChannelMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	sent, err := d.SendChannelTxtMsg(c.Request.Context(), companion.ChannelMessage{
		Type:    command.TxtType(req.TxtType),
		Channel: idx,
		Text:    req.Text,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sent)
}
