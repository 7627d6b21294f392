package orchestrator

import "context"

type credentialKey struct{}

// WithCredential attaches the execution credential for a job run to the
// context. Executors that talk to an external backend read it back with
// CredentialFromContext.
func WithCredential(ctx context.Context, credential string) context.Context {
	if credential == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialKey{}, credential)
}

// CredentialFromContext returns the execution credential, if any
func CredentialFromContext(ctx context.Context) string {
	cred, _ := ctx.Value(credentialKey{}).(string)
	return cred
}
