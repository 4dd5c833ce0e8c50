package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/api/middleware"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// 上传文件字段名：multipart/form-data, field="file"
const uploadField = "file"

var errUploadMissing = errors.New("缺少上传文件")

// readUpload 读取上传文件的全部内容
// exts 为允许的扩展名（小写，含点）；失败时已写入响应
func readUpload(c *gin.Context, exts ...string) (string, []byte, bool) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "上传文件过大")
			return "", nil, false
		}
		response.BadRequest(c, 10001, errUploadMissing.Error())
		return "", nil, false
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	allowed := len(exts) == 0
	for _, e := range exts {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		response.BadRequest(c, 10001, "不支持的文件类型: "+ext)
		return "", nil, false
	}

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 10001, "无法读取上传文件")
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.BadRequest(c, 10001, "无法读取上传文件")
		return "", nil, false
	}
	return filepath.Base(fh.Filename), data, true
}
