package controllers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/media"
	"github.com/cppla/sharebox/middleware"
	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/rangereq"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

// FileController serves the authenticated file endpoints.
type FileController struct {
	files       *services.FileService
	sharePrefix string
	maxUpload   int64
}

// NewFileController creates a new FileController.
func NewFileController(files *services.FileService, cfg config.AppConfig) *FileController {
	prefix := cfg.SharePathPrefix
	if prefix == "" {
		prefix = "/share/"
	}
	return &FileController{files: files, sharePrefix: prefix, maxUpload: cfg.MaxUploadBytes}
}

type fileIDRequest struct {
	FileID string `json:"fileId" binding:"required"`
}

type fileItem struct {
	ID              string     `json:"id"`
	FileName        string     `json:"fileName"`
	MimeType        string     `json:"mimeType"`
	SizeBytes       int64      `json:"sizeBytes"`
	UploadTimestamp time.Time  `json:"uploadTimestamp"`
	ShareCode       string     `json:"shareCode,omitempty"`
	ShareLink       string     `json:"shareLink,omitempty"`
	Kind            media.Kind `json:"kind"`
	Viewable        bool       `json:"viewable"`
}

func (f *FileController) shareLink(ctx *gin.Context, code string) string {
	return requestOrigin(ctx) + f.sharePrefix + code
}

// detectMime prefers the part's declared type and falls back to the extension.
func detectMime(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// Upload stores a multipart "file" part and returns its first share link.
func (f *FileController) Upload(ctx *gin.Context) {
	if f.maxUpload > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, f.maxUpload+multipartOverhead)
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
			return
		}
		utils.Error(ctx, http.StatusBadRequest, 40002, "no file uploaded")
		return
	}
	if f.maxUpload > 0 && header.Size > f.maxUpload {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
		return
	}

	name := utils.SanitizeFilename(header.Filename)
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid file name")
		return
	}
	body, err := header.Open()
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "no file uploaded")
		return
	}
	defer body.Close()

	res, err := f.files.Upload(ctx.Request.Context(), services.UploadInput{
		UserID:   middleware.CurrentUserID(ctx),
		Filename: name,
		MimeType: detectMime(header.Header.Get("Content-Type"), name),
		Size:     header.Size,
		Body:     body,
	})
	if err != nil {
		respondError(ctx, "upload", err)
		return
	}
	utils.Success(ctx, gin.H{
		"fileId":    res.File.ID,
		"fileName":  res.File.OriginalFilename,
		"shareCode": res.Link.ShareCode,
		"shareLink": f.shareLink(ctx, res.Link.ShareCode),
	})
}

// List returns the caller's files and quota summary.
func (f *FileController) List(ctx *gin.Context) {
	listing, err := f.files.List(ctx.Request.Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		respondError(ctx, "list files", err)
		return
	}

	items := make([]fileItem, 0, len(listing.Files))
	for _, file := range listing.Files {
		kind := media.Classify(file.MimeType)
		item := fileItem{
			ID:              file.ID,
			FileName:        file.OriginalFilename,
			MimeType:        file.MimeType,
			SizeBytes:       file.SizeBytes,
			UploadTimestamp: file.UploadTimestamp,
			Kind:            kind,
			Viewable:        kind.Inline(),
		}
		if len(file.Links) > 0 {
			item.ShareCode = file.Links[0].ShareCode
			item.ShareLink = f.shareLink(ctx, item.ShareCode)
		}
		items = append(items, item)
	}
	utils.Success(ctx, gin.H{
		"files": items,
		"user":  userSummary(listing.User, listing.Used),
	})
}

// Rename changes a file's display name.
func (f *FileController) Rename(ctx *gin.Context) {
	type request struct {
		FileID      string `json:"fileId" binding:"required"`
		NewFilename string `json:"newFilename" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "file id and new file name are required")
		return
	}
	name := utils.SanitizeFilename(req.NewFilename)
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid file name")
		return
	}

	file, err := f.files.Rename(ctx.Request.Context(), req.FileID, middleware.CurrentUserID(ctx), name)
	if err != nil {
		respondError(ctx, "rename file", err)
		return
	}
	utils.Success(ctx, gin.H{"fileId": file.ID, "fileName": file.OriginalFilename})
}

// Delete removes a file with its links and content.
func (f *FileController) Delete(ctx *gin.Context) {
	var req fileIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "file id is required")
		return
	}
	if err := f.files.Delete(ctx.Request.Context(), req.FileID, middleware.CurrentUserID(ctx)); err != nil {
		respondError(ctx, "delete file", err)
		return
	}
	utils.Success(ctx, gin.H{"success": true})
}

// CreateLink issues an additional share link.
func (f *FileController) CreateLink(ctx *gin.Context) {
	var req fileIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "file id is required")
		return
	}
	link, err := f.files.CreateLink(ctx.Request.Context(), req.FileID, middleware.CurrentUserID(ctx))
	if err != nil {
		respondError(ctx, "create link", err)
		return
	}
	utils.Success(ctx, gin.H{
		"linkId":    link.LinkID,
		"shareCode": link.ShareCode,
		"shareLink": f.shareLink(ctx, link.ShareCode),
	})
}

// Download streams a file to its owner as an attachment.
func (f *FileController) Download(ctx *gin.Context) {
	file, err := f.files.Owned(ctx.Request.Context(), ctx.Param("id"), middleware.CurrentUserID(ctx))
	if err != nil {
		respondError(ctx, "download", err)
		return
	}
	serveContent(ctx, f.files, file, true)
}

// serveContent writes a stored file honouring Range for audio and video.
func serveContent(ctx *gin.Context, files *services.FileService, file *models.File, forceDownload bool) {
	plan := rangereq.Resolve(file.SizeBytes, file.MimeType, ctx.GetHeader("Range"))
	headers := plan.Headers()
	headers["Content-Disposition"] = media.Disposition(media.Classify(file.MimeType), file.OriginalFilename, forceDownload)
	headers["X-Content-Type-Options"] = "nosniff"
	headers["Content-Security-Policy"] = "sandbox"

	if ctx.Request.Method == http.MethodHead {
		for k, v := range headers {
			ctx.Header(k, v)
		}
		ctx.Header("Content-Type", file.MimeType)
		ctx.Status(plan.Status)
		return
	}

	rc, err := files.Content(ctx.Request.Context(), file, plan)
	if err != nil {
		respondError(ctx, "open content", err)
		return
	}
	defer rc.Close()
	ctx.DataFromReader(plan.Status, plan.Length(), file.MimeType, rc, headers)
}
