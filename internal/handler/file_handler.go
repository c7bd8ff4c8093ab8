package handler

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/response"
)

type FileHandler struct {
	store filestore.Store
}

func NewFileHandler(store filestore.Store) *FileHandler {
	return &FileHandler{store: store}
}

// Get streams a stored image, note or book by its object key.
func (h *FileHandler) Get(c *gin.Context) {
	key, err := filestore.CleanKey(c.Param("key"))
	if err != nil {
		badRequest(c, "invalid file key")
		return
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if appErr.IsNotFound(err) {
			response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "file not found")
			return
		}
		logutil.GetLogger(c.Request.Context()).Error("open stored file failed", zap.String("key", key), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	if f, ok := file.(*os.File); ok {
		modTime := time.Time{}
		if st, err := f.Stat(); err == nil {
			modTime = st.ModTime()
		}
		http.ServeContent(c.Writer, c.Request, path.Base(key), modTime, f)
		return
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
