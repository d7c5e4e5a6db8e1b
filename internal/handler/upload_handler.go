package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/middleware"
	"praivio-go/internal/model"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

// multipart 头部和其他表单字段的余量
const multipartOverhead = 1 << 20

// UploadHandler 负责附件的上传、查询、下载和删除。
type UploadHandler struct {
	files   service.FileService
	maxSize int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
// 请求体大小上限取各类型限制中的最大值，具体类型的限制由 service 判断。
func NewUploadHandler(files service.FileService, limits service.UploadLimits) *UploadHandler {
	maxSize := limits.PDF
	for _, n := range []int64{limits.Image, limits.Audio} {
		if n > maxSize {
			maxSize = n
		}
	}
	return &UploadHandler{files: files, maxSize: maxSize}
}

// Upload 处理 multipart 文件上传，字段 file 为文件，session_id 可选。
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	id, _ := middleware.CurrentIdentity(c)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, id, "", service.ErrFileTooLarge)
			return
		}
		log.Warnf("Upload: missing file field: %v", err)
		h.reject(c, id, "", service.ErrMissingFile)
		return
	}
	if fh.Size > h.maxSize {
		h.reject(c, id, fh.Filename, service.ErrFileTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		log.Error("Upload: failed to open multipart file", err)
		h.reject(c, id, fh.Filename, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxSize+1))
	if err != nil {
		log.Error("Upload: failed to read multipart file", err)
		h.reject(c, id, fh.Filename, err)
		return
	}

	in := service.UploadInput{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
	if sid := c.PostForm("session_id"); sid != "" {
		in.SessionID = &sid
	}

	info, err := h.files.Upload(c.Request.Context(), id, middleware.Meta(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' uploaded file %s (%s, %d bytes)", id.Username, info.ID, info.FileType, info.FileSize)
	respondOK(c, "File uploaded successfully", info)
}

// reject 写入上传失败审计并返回错误响应。
func (h *UploadHandler) reject(c *gin.Context, id model.Identity, fileName string, err error) {
	h.files.RejectUpload(c.Request.Context(), id, middleware.Meta(c), fileName, err)
	respondError(c, err)
}

// Get 返回文件元数据和解密后的提取文本。
func (h *UploadHandler) Get(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	info, err := h.files.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", info)
}

// ListBySession 返回会话下的全部附件，不含提取文本。
func (h *UploadHandler) ListBySession(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	files, err := h.files.ListBySession(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", files)
}

// Delete 删除附件及其存储对象。
func (h *UploadHandler) Delete(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.files.Delete(c.Request.Context(), id, middleware.Meta(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "File deleted successfully", nil)
}

// Download 返回一个临时下载链接。
func (h *UploadHandler) Download(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	url, err := h.files.DownloadURL(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"url": url, "expires_in": int(service.DownloadURLExpiry.Seconds())})
}
