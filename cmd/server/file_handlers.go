package main

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/files"
	"github.com/blockvault/internal/middleware"
)

var (
	errFileRequired   = apperr.New(apperr.InvalidInput, "file part required (multipart/form-data)")
	errUploadTooLarge = apperr.New(apperr.InvalidInput, "upload exceeds size limit")
	errBadLimit       = apperr.New(apperr.InvalidInput, "limit must be int")
	errBadCursor      = apperr.New(apperr.InvalidInput, "after must be int timestamp")
)

// handleUpload 上传文件
//
// The multipart form carries "file", "key" and an optional "aad".
func handleUpload(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			middleware.RespondError(c, uploadError(err))
			return
		}
		f, err := header.Open()
		if err != nil {
			middleware.RespondError(c, uploadError(err))
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			middleware.RespondError(c, uploadError(err))
			return
		}

		resp, err := fileService.Upload(c.Request.Context(), p, files.UploadRequest{
			Name:       header.Filename,
			Data:       data,
			Passphrase: c.PostForm("key"),
			AAD:        c.PostForm("aad"),
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errUploadTooLarge
	}
	return apperr.Wrap(errFileRequired, err)
}

// handleDownload 下载文件
//
// The passphrase comes from ?key= or X-File-Key.
func handleDownload(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		key := c.Query("key")
		if key == "" {
			key = c.GetHeader("X-File-Key")
		}

		record, data, err := fileService.Download(c.Request.Context(), p, c.Param("id"), key)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": record.OriginalName}))
		c.Data(http.StatusOK, "application/octet-stream", data)
	}
}

// handleListFiles 文件列表: ?limit=&after=
func handleListFiles(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		limit := files.DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				middleware.RespondError(c, errBadLimit)
				return
			}
			limit = n
		}
		var after *int64
		if raw := c.Query("after"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				middleware.RespondError(c, errBadCursor)
				return
			}
			after = &n
		}

		resp, err := fileService.List(c.Request.Context(), p, after, limit)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleDeleteFile(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		fileID := c.Param("id")
		if err := fileService.Delete(c.Request.Context(), p, fileID); err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "deleted", "file_id": fileID})
	}
}

func handleVerifyFile(fileService *files.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		resp, err := fileService.Verify(c.Request.Context(), p, c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
