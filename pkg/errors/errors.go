// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors 提供统一错误分类与包装辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// Kind 错误类别，HTTP 层据此映射状态码
type Kind int

const (
	// KindInternal 其它内部错误
	KindInternal Kind = iota
	// KindInvalidEncoding base64 非法
	KindInvalidEncoding
	// KindInvalidImage 字节无法解码为受支持的图片
	KindInvalidImage
	// KindUnauthorized token 不匹配
	KindUnauthorized
	// KindModelLoad 模型标识无法加载
	KindModelLoad
	// KindBadRequest 请求格式错误（JSON、缺参数、超出限制）
	KindBadRequest
	// KindNotFound 资源不存在
	KindNotFound
)

// String 返回稳定的错误码，作为响应体 error 字段
func (k Kind) String() string {
	switch k {
	case KindInvalidEncoding:
		return "invalid_encoding"
	case KindInvalidImage:
		return "invalid_image"
	case KindUnauthorized:
		return "unauthorized"
	case KindModelLoad:
		return "model_load_failure"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_failure"
	}
}

// Error 带类别的错误；Index >= 0 时指向批量请求中出错的图片下标
type Error struct {
	Kind  Kind
	Op    string
	Index int
	Err   error
}

// E 构造带类别的错误
func E(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Op: op, Index: -1, Err: err}
}

// AtIndex 构造指向批量下标的错误
func AtIndex(kind Kind, op string, index int, err error) error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Op: op, Index: index, Err: err}
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Index >= 0 {
		msg = fmt.Sprintf("image %d: %s", e.Index, msg)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回错误链上第一个 *Error 的类别；ErrNotFound/ErrInvalidArg 映射到对应类别，其余为 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArg):
		return KindBadRequest
	}
	return KindInternal
}

// Is 判断 err 是否属于 kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
