package identity

import (
	"context"
	"testing"
)

func TestPatientIDRoundTrip(t *testing.T) {
	ctx := WithPatientID(context.Background(), "patient-1")
	got, ok := PatientIDFromContext(ctx)
	if !ok || got != "patient-1" {
		t.Fatalf("expected patient-1, got %q ok=%v", got, ok)
	}
}

func TestPatientIDFromContext_EmptyOrMissing(t *testing.T) {
	if _, ok := PatientIDFromContext(context.Background()); ok {
		t.Fatalf("expected missing patient id to return false")
	}
	ctx := context.WithValue(context.Background(), patientKey, 42)
	if _, ok := PatientIDFromContext(ctx); ok {
		t.Fatalf("expected non-string patient id to return false")
	}
	if _, ok := PatientIDFromContext(WithPatientID(context.Background(), "")); ok {
		t.Fatalf("expected empty patient id to return false")
	}
}

func TestAdminDefaultsSubject(t *testing.T) {
	sub, ok := AdminFromContext(WithAdmin(context.Background(), ""))
	if !ok || sub != "admin" {
		t.Fatalf("expected default admin subject, got %q ok=%v", sub, ok)
	}
}

func TestCanAccess(t *testing.T) {
	owner := WithPatientID(context.Background(), "p1")
	if !CanAccess(owner, "p1") {
		t.Fatalf("owner should access own resource")
	}
	if CanAccess(owner, "p2") {
		t.Fatalf("patient must not access another patient's resource")
	}
	if !CanAccess(WithAdmin(context.Background(), "ops"), "p2") {
		t.Fatalf("admin should access any resource")
	}
	if CanAccess(context.Background(), "p1") {
		t.Fatalf("anonymous caller must not access resources")
	}
}
