package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/phase"
	"github.com/shouni/go-zenith-comic-kit/pkg/publisher"
)

type respondRequest struct {
	Input string `json:"input"`
}

func (s *Server) listEpisodes(c *gin.Context) {
	c.JSON(http.StatusOK, s.mgr.Episodes().All())
}

func (s *Server) createEpisode(c *gin.Context) {
	var in domain.EpisodeInput
	if !bindJSON(c, &in) {
		return
	}
	ep, err := s.mgr.CreateEpisode(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, ep)
}

func (s *Server) getEpisode(c *gin.Context) {
	ep, err := s.mgr.Episodes().Find(c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episode": ep, "busy": s.mgr.EpisodeBusy(ep.ID)})
}

func (s *Server) deleteEpisode(c *gin.Context) {
	if err := s.mgr.DeleteEpisode(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) openEpisode(c *gin.Context) {
	ctx, cancel := s.modelContext(c)
	run, err := s.mgr.OpenEpisode(ctx, c.Param("id"))
	if err != nil {
		cancel()
		respondError(c, err, nil)
		return
	}
	s.finishRun(ctx, cancel, c, run)
}

func (s *Server) respondEpisode(c *gin.Context) {
	var req respondRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := s.modelContext(c)
	run, err := s.mgr.RespondEpisode(ctx, c.Param("id"), req.Input)
	if err != nil {
		cancel()
		respondError(c, err, nil)
		return
	}
	s.finishRun(ctx, cancel, c, run)
}

// finishRun はモデル呼び出しを待って結果を返します。
// ?async=true の場合は応答待ちの状態をすぐに返し、結果は WebSocket の変更通知で知らせるのだ。
func (s *Server) finishRun(ctx context.Context, cancel context.CancelFunc, c *gin.Context, run *phase.Run) {
	if c.Query("async") == "true" && run.Accepted {
		go func() {
			defer cancel()
			if _, err := run.Wait(ctx); err != nil {
				slog.Warn("Background episode generation finished with error", "id", run.Episode.ID, "error", err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "episode": run.Episode})
		return
	}

	defer cancel()
	ep, err := run.Wait(ctx)
	if err != nil {
		respondError(c, err, gin.H{"episode": ep})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": run.Accepted, "episode": ep})
}

func (s *Server) finishEpisode(c *gin.Context) {
	ep, err := s.mgr.FinishEpisode(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (s *Server) leaveEpisode(c *gin.Context) {
	s.mgr.LeaveEpisode(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) exportEpisode(c *gin.Context) {
	format, err := publisher.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ep, err := s.mgr.Episodes().Find(c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	artifact, err := publisher.RenderEpisode(ep, format, s.theme)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	writeArtifact(c, artifact)
}
