package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerr "github.com/pkg/errors"
)

// CodeError 带码错误。Msg 是给客户端看的稳定文案(准入失败时作为
// 关闭原因下发), Detail 只进日志。
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// New 内部错误, kv 成对拼进 detail
func New(msg string, kv ...any) *CodeError {
	return &CodeError{Code: ServerInternalError, Msg: msg, Detail: kvString("", kv)}
}

func (e *CodeError) Error() string {
	parts := []string{strconv.Itoa(e.Code), e.Msg}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " ")
}

// WithDetail 返回追加了 detail 的副本, 预定义错误本体不可被改动
func (e *CodeError) WithDetail(detail string) *CodeError {
	c := *e
	if c.Detail == "" {
		c.Detail = detail
	} else {
		c.Detail += ", " + detail
	}
	return &c
}

// Wrap 带上调用栈
func (e *CodeError) Wrap() error {
	return pkgerr.WithStack(e)
}

// WrapMsg 追加上下文并带栈返回
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	c := *e
	if msg != "" || len(kv) > 0 {
		if d := kvString(msg, kv); c.Detail == "" {
			c.Detail = d
		} else {
			c.Detail += ", " + d
		}
	}
	return pkgerr.WithStack(&c)
}

// Is 同码即同错; 不同码再查父子关系表
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(Unwrap(err), &ce) {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	if e.Code == ce.Code {
		return true
	}
	return DefaultCodeRelation.Is(e.Code, ce.Code)
}

// Unwrap 一路展开到根因
func Unwrap(err error) error {
	for err != nil {
		u, ok := err.(interface {
			error
			Unwrap() error
		})
		if !ok {
			break
		}
		next := u.Unwrap()
		if next == nil {
			return u
		}
		err = next
	}
	return err
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerr.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerr.Wrap(err, kvString(msg, kv))
}

// kvString "msg k1=v1, k2=v2"
func kvString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i == 0 {
			if msg != "" {
				sb.WriteString(" ")
			}
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return sb.String()
}

// ===== 错误码父子关系 =====

var DefaultCodeRelation = newCodeRelation()

type CodeRelation interface {
	Add(codes ...int) error
	Is(parent, child int) bool
}

type codeRelation struct {
	m map[int]map[int]struct{}
}

func newCodeRelation() CodeRelation {
	return &codeRelation{m: make(map[int]map[int]struct{})}
}

// Add 前面的码是后面所有码的父码, 至少两个
func (r *codeRelation) Add(codes ...int) error {
	if len(codes) < 2 {
		return New("codes length must be greater than 2", "codes", codes).Wrap()
	}
	for i := 1; i < len(codes); i++ {
		parent := codes[i-1]
		s, ok := r.m[parent]
		if !ok {
			s = make(map[int]struct{})
			r.m[parent] = s
		}
		for _, code := range codes[i:] {
			s[code] = struct{}{}
		}
	}
	return nil
}

func (r *codeRelation) Is(parent, child int) bool {
	if parent == child {
		return true
	}
	s, ok := r.m[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}
