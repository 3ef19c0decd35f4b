package errs

import (
	"io"
	"testing"
)

func TestWithDetail(t *testing.T) {
	e := ErrMalformedEvent.WithDetail("bad json")
	if e.Code != MalformedEventError {
		t.Fatalf("code = %d, want %d", e.Code, MalformedEventError)
	}
	e2 := e.WithDetail("field type")
	if e2.Detail != "bad json, field type" {
		t.Fatalf("detail = %q", e2.Detail)
	}
	// 原对象不可被修改
	if ErrMalformedEvent.Detail != "" {
		t.Fatalf("predefined error mutated: %q", ErrMalformedEvent.Detail)
	}
}

func TestIsThroughWrap(t *testing.T) {
	err := ErrTargetOffline.WrapMsg("relay", "target", "u42")
	if !ErrTargetOffline.Is(err) {
		t.Fatalf("ErrTargetOffline.Is(wrapped) = false")
	}
	if ErrPersistence.Is(err) {
		t.Fatalf("ErrPersistence.Is(wrapped) = true")
	}
}

func TestUnwrapRoot(t *testing.T) {
	root := io.ErrUnexpectedEOF
	err := WrapMsg(root, "read frame")
	if Unwrap(err) != root {
		t.Fatalf("Unwrap = %v, want %v", Unwrap(err), root)
	}
	if Wrap(nil) != nil {
		t.Fatalf("Wrap(nil) != nil")
	}
}

func TestCodeRelation(t *testing.T) {
	rel := newCodeRelation()
	if err := rel.Add(ForbiddenError); err == nil {
		t.Fatalf("Add with single code should fail")
	}
	if err := rel.Add(ForbiddenError, NotGroupMemberError, ChannelNotFoundError); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !rel.Is(ForbiddenError, NotGroupMemberError) {
		t.Fatalf("relation lost")
	}
	if rel.Is(NotGroupMemberError, ForbiddenError) {
		t.Fatalf("relation should be one-way")
	}
}
