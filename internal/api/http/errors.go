package http

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"caption-gateway/internal/api/http/middleware"
	"caption-gateway/pkg/errors"
)

// statusForKind 错误类别 -> HTTP 状态码
func statusForKind(k errors.Kind) int {
	switch k {
	case errors.KindInvalidEncoding, errors.KindInvalidImage, errors.KindBadRequest:
		return consts.StatusBadRequest
	case errors.KindUnauthorized:
		return consts.StatusUnauthorized
	case errors.KindNotFound:
		return consts.StatusNotFound
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 写统一错误体；5xx 默认不暴露内部错误信息
func (h *Handler) writeError(ctx context.Context, c *app.RequestContext, err error) {
	kind := errors.KindOf(err)
	status := statusForKind(kind)
	detail := err.Error()

	switch {
	case status >= consts.StatusInternalServerError:
		h.logger.Error("request failed", "path", string(c.Path()), "kind", kind.String(),
			"request_id", middleware.GetRequestID(c), "error", err)
		if !h.exposeInternal {
			detail = genericDetail(kind)
		}
	case kind == errors.KindUnauthorized:
		h.logger.Warn("unauthorized request", "path", string(c.Path()), "request_id", middleware.GetRequestID(c))
		detail = "invalid or missing token"
	}
	middleware.Abort(c, status, kind.String(), detail)
}

func genericDetail(kind errors.Kind) string {
	if kind == errors.KindModelLoad {
		return "model could not be loaded"
	}
	return "internal error"
}
