package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/sharebox/media"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// ShareController serves public share links.
type ShareController struct {
	files *services.FileService
}

// NewShareController creates a new ShareController.
func NewShareController(files *services.FileService) *ShareController {
	return &ShareController{files: files}
}

// Fetch serves the shared content for GET and HEAD.
func (s *ShareController) Fetch(ctx *gin.Context) {
	file, err := s.files.Shared(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		respondError(ctx, "resolve share", err)
		return
	}
	serveContent(ctx, s.files, file, false)
}

// Info returns metadata about a shared file.
func (s *ShareController) Info(ctx *gin.Context) {
	file, err := s.files.Shared(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		respondError(ctx, "resolve share", err)
		return
	}
	kind := media.Classify(file.MimeType)
	utils.Success(ctx, gin.H{
		"fileName":  file.OriginalFilename,
		"mimeType":  file.MimeType,
		"sizeBytes": file.SizeBytes,
		"kind":      kind,
		"viewable":  kind.Inline(),
	})
}
