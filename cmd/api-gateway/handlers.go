package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	gwtypes "github.com/lgulliver/filestore/cmd/api-gateway/types"
	"github.com/lgulliver/filestore/internal/filestore"
	"github.com/lgulliver/filestore/internal/storage"
	"github.com/lgulliver/filestore/pkg/types"
)

// containerParam returns the :container path parameter. UUIDs are
// canonicalised so any spelling addresses the same container.
func containerParam(c *gin.Context) string {
	raw := c.Param("container")
	if id, err := uuid.Parse(raw); err == nil {
		return filestore.ContainerForID(id)
	}
	return raw
}

func filenameParam(c *gin.Context) (string, bool) {
	name := strings.TrimPrefix(c.Param("filename"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "file name is required",
		})
		return "", false
	}
	return name, true
}

func publicParam(c *gin.Context) (bool, bool) {
	raw := c.Query("public")
	if raw == "" {
		return false, true
	}
	public, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "public must be a boolean",
		})
		return false, false
	}
	return public, true
}

func accessCondition(c *gin.Context) storage.AccessCondition {
	return storage.AccessCondition{
		IfMatch:     strings.TrimSpace(c.GetHeader("If-Match")),
		IfNoneMatch: strings.TrimSpace(c.GetHeader("If-None-Match")),
	}
}

// respondError maps store errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrConditionNotMet):
		status = http.StatusPreconditionFailed
	case errors.Is(err, storage.ErrInvalidName):
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "internal storage error"
	}

	if c.Request.Method == http.MethodHead {
		c.Status(status)
		return
	}
	c.JSON(status, types.APIResponse{
		Success: false,
		Error:   message,
	})
}

func setFileHeaders(c *gin.Context, item *types.FileItem) {
	c.Header("Content-Type", item.ContentType)
	c.Header("Content-Length", strconv.FormatInt(item.Length, 10))
	if item.LastModified != nil {
		c.Header("Last-Modified", item.LastModified.UTC().Format(http.TimeFormat))
	}
}

func handleHealth(storageType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gwtypes.HealthStatus{
			Status:    "healthy",
			Service:   "filestore-api-gateway",
			Storage:   storageType,
			Timestamp: time.Now().UTC(),
		})
	}
}

// handleListFiles godoc
//
//	@Summary		List files
//	@Description	List files in a container ordered by name, creating the container if needed
//	@Tags			Files
//	@Produce		json
//	@Param			container	path		string	true	"Container name or UUID"
//	@Param			prefix		query		string	false	"Only list names starting with this prefix"
//	@Param			public		query		bool	false	"Use the public variant of the container"
//	@Success		200			{object}	types.APIResponse{data=[]types.FileItem}
//	@Failure		400			{object}	types.APIResponse
//	@Failure		401			{object}	types.APIResponse
//	@Security		BearerAuth
//	@Security		ApiKeyAuth
//	@Router			/containers/{container}/files [get]
func handleListFiles(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		public, ok := publicParam(c)
		if !ok {
			return
		}

		items, err := store.List(c.Request.Context(), containerParam(c), c.Query("prefix"), filestore.PublicAccess(public))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    items,
		})
	}
}

// handlePutFile godoc
//
//	@Summary		Upload a file
//	@Description	Store the request body under the given name. The content type is inferred from the name.
//	@Tags			Files
//	@Accept			octet-stream
//	@Produce		json
//	@Param			container		path		string	true	"Container name or UUID"
//	@Param			filename		path		string	true	"File name, may contain slashes"
//	@Param			public			query		bool	false	"Use the public variant of the container"
//	@Param			If-Match		header		string	false	"Only overwrite a file with this ETag"
//	@Param			If-None-Match	header		string	false	"Refuse to overwrite; * rejects any existing file"
//	@Success		201				{object}	types.APIResponse{data=gwtypes.UploadResponse}
//	@Failure		400				{object}	types.APIResponse
//	@Failure		412				{object}	types.APIResponse
//	@Security		BearerAuth
//	@Security		ApiKeyAuth
//	@Router			/containers/{container}/files/{filename} [put]
func handlePutFile(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := filenameParam(c)
		if !ok {
			return
		}
		public, ok := publicParam(c)
		if !ok {
			return
		}

		container := containerParam(c)
		uri, err := store.Put(c.Request.Context(), container, name, c.Request.Body,
			filestore.PublicAccess(public), filestore.WithAccessCondition(accessCondition(c)))
		if err != nil {
			respondError(c, err)
			return
		}

		log.Info().Str("container", container).Str("file", name).Msg("file uploaded")

		c.Header("Location", uri)
		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "File stored",
			Data: gwtypes.UploadResponse{
				Container: filestore.ContainerName(container, public),
				Name:      name,
				URI:       uri,
			},
		})
	}
}

// handleGetFile godoc
//
//	@Summary		Download a file
//	@Tags			Files
//	@Produce		octet-stream
//	@Param			container	path	string	true	"Container name or UUID"
//	@Param			filename	path	string	true	"File name"
//	@Param			public		query	bool	false	"Use the public variant of the container"
//	@Success		200
//	@Failure		404	{object}	types.APIResponse
//	@Security		BearerAuth
//	@Security		ApiKeyAuth
//	@Router			/containers/{container}/files/{filename} [get]
func handleGetFile(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := filenameParam(c)
		if !ok {
			return
		}
		public, ok := publicParam(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		container := containerParam(c)

		headers := filestore.BeforeDownload(func(item *types.FileItem) {
			setFileHeaders(c, item)
			c.Status(http.StatusOK)
		})
		if _, err := store.Get(ctx, container, name, c.Writer, filestore.PublicAccess(public), headers); err != nil {
			if !c.Writer.Written() {
				c.Writer.Header().Del("Content-Length")
				c.Writer.Header().Del("Last-Modified")
				respondError(c, err)
				return
			}
			// headers are already sent
			log.Error().Err(err).Str("container", container).Str("file", name).Msg("failed to stream file")
			_ = c.Error(err)
		}
	}
}

func handleHeadFile(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := filenameParam(c)
		if !ok {
			return
		}
		public, ok := publicParam(c)
		if !ok {
			return
		}

		item, err := store.Stat(c.Request.Context(), containerParam(c), name, filestore.PublicAccess(public))
		if err != nil {
			respondError(c, err)
			return
		}

		setFileHeaders(c, item)
		c.Status(http.StatusOK)
	}
}

func handleDeleteFile(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := filenameParam(c)
		if !ok {
			return
		}
		public, ok := publicParam(c)
		if !ok {
			return
		}

		deleted, err := store.Delete(c.Request.Context(), containerParam(c), name, filestore.PublicAccess(public))
		if err != nil {
			respondError(c, err)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "file not found",
			})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// handleFileURL godoc
//
//	@Summary		Public URL of a file
//	@Description	Address of the file in the public variant of the container. The file need not exist.
//	@Tags			Files
//	@Produce		json
//	@Param			container	path		string	true	"Container name or UUID"
//	@Param			filename	path		string	true	"File name"
//	@Success		200			{object}	types.APIResponse{data=gwtypes.URLResponse}
//	@Security		BearerAuth
//	@Security		ApiKeyAuth
//	@Router			/containers/{container}/url/{filename} [get]
func handleFileURL(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := filenameParam(c)
		if !ok {
			return
		}

		url, err := store.URL(c.Request.Context(), containerParam(c), name)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    gwtypes.URLResponse{URL: url},
		})
	}
}

// handleDeleteContainer godoc
//
//	@Summary		Delete a container
//	@Tags			Containers
//	@Param			container	path	string	true	"Container name or UUID"
//	@Param			public		query	bool	false	"Delete the public variant"
//	@Success		204
//	@Failure		404	{object}	types.APIResponse
//	@Security		BearerAuth
//	@Security		ApiKeyAuth
//	@Router			/containers/{container} [delete]
func handleDeleteContainer(store *filestore.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		public, ok := publicParam(c)
		if !ok {
			return
		}

		container := containerParam(c)
		deleted, err := store.DeleteContainer(c.Request.Context(), container, filestore.PublicAccess(public))
		if err != nil {
			respondError(c, err)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "container not found",
			})
			return
		}

		log.Info().Str("container", container).Msg("container deleted")
		c.Status(http.StatusNoContent)
	}
}
