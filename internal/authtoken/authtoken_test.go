package authtoken

import (
	"testing"
	"time"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

func TestIssueAndVerify(t *testing.T) {
	svc := New("secret", time.Hour)
	sess := &types.Session{SessionID: "sess-1", Kind: types.SessionMain, AgentID: "agent-1"}

	token, err := svc.Issue(sess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("expected session id sess-1, got %q", claims.SessionID)
	}
	if claims.Kind != types.SessionMain {
		t.Errorf("expected kind main, got %q", claims.Kind)
	}
	if claims.AgentID != "agent-1" {
		t.Errorf("expected agent id agent-1, got %q", claims.AgentID)
	}
}

func TestDisabledWithoutSecret(t *testing.T) {
	svc := New("", time.Hour)
	sess := &types.Session{SessionID: "sess-1"}

	if _, err := svc.Issue(sess); !errs.Is(err, errs.KindConfiguration) {
		t.Fatalf("expected a Configuration-kind error, got %v", err)
	}
	if _, err := svc.Verify("anything"); err == nil {
		t.Fatal("expected Verify() to fail when signing is disabled")
	}
}

func TestIssueRequiresSessionID(t *testing.T) {
	svc := New("secret", time.Hour)

	if _, err := svc.Issue(&types.Session{}); err == nil {
		t.Fatal("expected error for empty session id")
	}
	if _, err := svc.Issue(nil); err == nil {
		t.Fatal("expected error for nil session")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := New("secret", time.Hour)
	sess := &types.Session{SessionID: "sess-1"}

	token, err := svc.Issue(sess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherSvc := New("different-secret", time.Hour)
	if _, err := otherSvc.Verify(token); err == nil {
		t.Fatal("expected Verify() to reject a token signed with a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := New("secret", -time.Minute)
	sess := &types.Session{SessionID: "sess-1"}

	token, err := svc.Issue(sess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := svc.Verify(token); err == nil {
		t.Fatal("expected Verify() to reject an expired token")
	}
}

func TestIssueWithoutExpiry(t *testing.T) {
	svc := New("secret", 0)
	sess := &types.Session{SessionID: "sess-1"}

	token, err := svc.Issue(sess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}
