package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/domain"
)

const defaultQRSize = 256

type roomHandlers struct {
	orch      *orch.Orchestrator
	publicURL string
	qrSize    int
}

// list returns live rooms and, with a durable store, the codes whose
// canvas survives with nobody in it.
func (h *roomHandlers) list(c *gin.Context) {
	stored, err := h.orch.Rooms.Stored(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list stored rooms")
	}
	if stored == nil {
		stored = []domain.RoomCode{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List(), "stored": stored})
}

func (h *roomHandlers) info(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	if !code.Valid() {
		c.JSON(http.StatusBadRequest, orch.NewErrorPayload(orch.ErrInvalidRoomCode))
		return
	}
	room, ok := h.orch.Rooms.Get(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, room.Info())
}

// qr renders a PNG share code for the room link. The room need not exist
// yet; joining creates it.
func (h *roomHandlers) qr(c *gin.Context) {
	code := c.Param("code")
	if !domain.RoomCode(code).Valid() {
		c.JSON(http.StatusBadRequest, orch.NewErrorPayload(orch.ErrInvalidRoomCode))
		return
	}
	size := h.qrSize
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(shareURL(h.publicURL, c.Request, code), qrcode.Medium, size)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", code).Msg("qr generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
