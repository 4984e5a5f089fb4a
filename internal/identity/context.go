// Package identity carries the authenticated caller through request contexts.
package identity

import "context"

type ctxKey string

const (
	patientKey ctxKey = "consult.patient_id"
	adminKey   ctxKey = "consult.admin_subject"
)

// WithPatientID stores the authenticated patient id in context.
func WithPatientID(ctx context.Context, patientID string) context.Context {
	return context.WithValue(ctx, patientKey, patientID)
}

// PatientIDFromContext extracts the patient id if present.
func PatientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(patientKey).(string)
	return id, ok && id != ""
}

// WithAdmin marks the request as made by an operator.
func WithAdmin(ctx context.Context, subject string) context.Context {
	if subject == "" {
		subject = "admin"
	}
	return context.WithValue(ctx, adminKey, subject)
}

// AdminFromContext returns the operator subject when the caller is an admin.
func AdminFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(adminKey).(string)
	return sub, ok && sub != ""
}

// CanAccess reports whether the caller may read a resource owned by patientID.
func CanAccess(ctx context.Context, patientID string) bool {
	if _, ok := AdminFromContext(ctx); ok {
		return true
	}
	caller, ok := PatientIDFromContext(ctx)
	return ok && caller == patientID
}
