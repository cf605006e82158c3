package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

const uidCookie = "uid"

// request is the union of every body field the API accepts.
type request struct {
	RoomID   protocol.RoomID `json:"roomId"`
	UID      identity.Token  `json:"uid"`
	Username string          `json:"username"`
	NumDecks int             `json:"numDecks"`
}

// bind reads the JSON body when present, then fills roomId and uid from the
// query string and the uid from the cookie when the body did not carry them.
func bind(ctx *gin.Context) (request, error) {
	var req request
	if ctx.Request.Body != nil && ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, gameerr.Invalid("malformed request body")
		}
	}
	if req.RoomID == "" {
		req.RoomID = protocol.RoomID(ctx.Query("roomId"))
	}
	if req.UID == identity.None {
		raw := ctx.Query("uid")
		if raw == "" {
			raw, _ = ctx.Cookie(uidCookie)
		}
		uid, err := identity.Parse(raw)
		if err != nil {
			return req, gameerr.Invalid("malformed uid")
		}
		req.UID = uid
	}
	return req, nil
}

func statusOf(err error) int {
	switch gameerr.KindOf(err) {
	case gameerr.KindInvalid:
		return http.StatusBadRequest
	case gameerr.KindNotFound:
		return http.StatusNotFound
	case gameerr.KindConflict:
		return http.StatusConflict
	case gameerr.KindUnauthorized:
		return http.StatusForbidden
	case gameerr.KindIllegalPlay:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(ctx *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": gameerr.Message(err)})
}

func setUID(ctx *gin.Context, uid identity.Token) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(uidCookie, uid.String(), 0, "/", "", false, false)
}

func (s *Server) createRoom(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	id, err := s.service.CreateRoom(ctx.Request.Context(), string(req.RoomID), req.NumDecks)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"roomId": id})
}

func (s *Server) join(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	res, err := s.service.Join(ctx.Request.Context(), string(req.RoomID), req.UID, req.Username)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	setUID(ctx, res.UID)
	ctx.JSON(http.StatusOK, res)
}

func (s *Server) spectate(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	uid, err := s.service.Spectate(ctx.Request.Context(), string(req.RoomID), req.UID)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	setUID(ctx, uid)
	ctx.JSON(http.StatusOK, gin.H{"uid": uid})
}

func (s *Server) players(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	view, err := s.service.Players(ctx.Request.Context(), string(req.RoomID))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (s *Server) gameState(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	view, err := s.service.Snapshot(ctx.Request.Context(), string(req.RoomID), req.UID)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (s *Server) start(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if err := s.service.Start(ctx.Request.Context(), string(req.RoomID), req.UID); err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Game started"})
}

func (s *Server) leave(ctx *gin.Context) {
	req, err := bind(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if err := s.service.Leave(ctx.Request.Context(), string(req.RoomID), req.UID); err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.service.Stats())
}
