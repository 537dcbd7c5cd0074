package caption

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/errors"
)

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// Decoder base64 图片解码与校验
type Decoder struct {
	MaxImageBytes int // 解码后字节上限，<=0 不限制
}

// stripDataURL 去掉 data:<mime>;base64, 前缀
func stripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 && strings.Contains(s[:i], ";base64") {
		return s[i+1:]
	}
	return s
}

// Decode 解码单张图片。编码错误为 KindInvalidEncoding，不是可识别图片为 KindInvalidImage，超限为 KindBadRequest
func (d Decoder) Decode(s string) (*vision.Input, error) {
	const op = "decode image"
	payload := stripDataURL(strings.TrimSpace(s))

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		// 兼容不带 padding 的输入
		raw, rawErr = base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, errors.E(errors.KindInvalidEncoding, op, err)
		}
	}
	if len(raw) == 0 {
		return nil, errors.E(errors.KindInvalidImage, op, fmt.Errorf("empty image payload"))
	}
	if d.MaxImageBytes > 0 && len(raw) > d.MaxImageBytes {
		return nil, errors.E(errors.KindBadRequest, op, fmt.Errorf("image is %d bytes, limit is %d", len(raw), d.MaxImageBytes))
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.E(errors.KindInvalidImage, op, err)
	}

	sum := sha256.Sum256(raw)
	return &vision.Input{
		Raw:    raw,
		MIME:   formatMIME[format],
		Format: format,
		Image:  img,
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}

// DecodeImage 不限制大小的解码
func DecodeImage(s string) (*vision.Input, error) {
	return Decoder{}.Decode(s)
}

// DecodeBatch 依次解码；第一张失败的图片终止整个批次，错误携带其下标
func (d Decoder) DecodeBatch(data []string) ([]*vision.Input, error) {
	out := make([]*vision.Input, 0, len(data))
	for i, s := range data {
		in, err := d.Decode(s)
		if err != nil {
			return nil, errors.AtIndex(errors.KindOf(err), "decode image", i, unwrapOp(err))
		}
		out = append(out, in)
	}
	return out, nil
}

// unwrapOp 去掉一层 *errors.Error，避免 op 重复出现在消息里
func unwrapOp(err error) error {
	if e, ok := err.(*errors.Error); ok && e.Err != nil {
		return e.Err
	}
	return err
}
