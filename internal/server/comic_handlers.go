package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/publisher"
)

type createComicRequest struct {
	domain.ComicInput
	// CharacterNames は常設キャストから名前で選ぶ場合に使います。
	CharacterNames []string `json:"characterNames"`
}

type excerptRequest struct {
	Excerpt string `json:"excerpt"`
}

type regenerateRequest struct {
	Field string `json:"field"`
}

type imageRequest struct {
	Instruction string `json:"instruction"`
	// PromptOnly が true なら画像は生成せず、プロンプトだけ組み立てます。
	PromptOnly bool `json:"promptOnly"`
}

type styleGuideRequest struct {
	Force bool `json:"force"`
}

// bindJSON はボディを読み込みます。空のボディは許容するのだ。
func bindJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの解析に失敗しました: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) listPredefinedCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, domain.PredefinedCharacters)
}

func (s *Server) listComics(c *gin.Context) {
	c.JSON(http.StatusOK, s.mgr.Comics().All())
}

func (s *Server) createComic(c *gin.Context) {
	var req createComicRequest
	if !bindJSON(c, &req) {
		return
	}
	in := req.ComicInput
	if len(in.Characters) == 0 {
		in.Characters = domain.PickPredefined(req.CharacterNames)
	}
	comic, err := s.mgr.CreateComic(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, comic)
}

func (s *Server) clearComics(c *gin.Context) {
	if err := s.mgr.ClearComics(c.Request.Context()); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getComic(c *gin.Context) {
	comic, err := s.mgr.Comics().Find(c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, comic)
}

func (s *Server) deleteComic(c *gin.Context) {
	if err := s.mgr.DeleteComic(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getDrafts(c *gin.Context) {
	set, ok := s.mgr.Drafts(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "下書きはありません"})
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) generateDrafts(c *gin.Context) {
	var req excerptRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := s.modelContext(c)
	defer cancel()

	panels, err := s.mgr.GenerateDrafts(ctx, c.Param("id"), req.Excerpt)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"panels": panels})
}

func (s *Server) discardDrafts(c *gin.Context) {
	s.mgr.DiscardDrafts(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) finishExcerpt(c *gin.Context) {
	comic, err := s.mgr.FinishExcerpt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, comic)
}

func (s *Server) updatePanel(c *gin.Context) {
	var panel domain.Panel
	if !bindJSON(c, &panel) {
		return
	}
	panel.ID = c.Param("panelID")
	updated, err := s.mgr.UpdatePanel(c.Request.Context(), c.Param("id"), panel)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) addDialogueLine(c *gin.Context) {
	panel, err := s.mgr.AddDialogueLine(c.Request.Context(), c.Param("id"), c.Param("panelID"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, panel)
}

func (s *Server) removeDialogueLine(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "セリフ番号は整数で指定してください"})
		return
	}
	panel, err := s.mgr.RemoveDialogueLine(c.Request.Context(), c.Param("id"), c.Param("panelID"), index)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, panel)
}

func (s *Server) regenerateField(c *gin.Context) {
	var req regenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	field, err := domain.ParsePanelField(req.Field)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctx, cancel := s.modelContext(c)
	defer cancel()

	panel, err := s.mgr.RegenerateField(ctx, c.Param("id"), c.Param("panelID"), field)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, panel)
}

func (s *Server) generatePanelImage(c *gin.Context) {
	var req imageRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PromptOnly {
		panel, err := s.mgr.PreparePanelImagePrompt(c.Request.Context(), c.Param("id"), c.Param("panelID"))
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, panel)
		return
	}

	ctx, cancel := s.modelContext(c)
	defer cancel()
	panel, err := s.mgr.GeneratePanelImage(ctx, c.Param("id"), c.Param("panelID"), req.Instruction)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, panel)
}

func (s *Server) generateAllImages(c *gin.Context) {
	ctx, cancel := s.modelContext(c)
	defer cancel()

	comic, err := s.mgr.GenerateAllImages(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, comic)
}

func (s *Server) ensureStyleGuide(c *gin.Context) {
	var req styleGuideRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := s.modelContext(c)
	defer cancel()

	comic, err := s.mgr.EnsureStyleGuide(ctx, c.Param("id"), req.Force)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, comic)
}

func (s *Server) exportComic(c *gin.Context) {
	format, err := publisher.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	comic, err := s.mgr.Comics().Find(c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	artifact, err := publisher.RenderComic(comic, format, s.theme)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	writeArtifact(c, artifact)
}

func writeArtifact(c *gin.Context, a publisher.Artifact) {
	c.Header("Content-Disposition", `attachment; filename="`+a.FileName+`"`)
	c.Data(http.StatusOK, a.ContentType, a.Data)
}
