// Package secrets supplies the credentials the controller needs at
// runtime. Credential material stays in memory for the lifetime of one
// invocation: it is never written to the state store, never logged,
// and never embedded in provisioned resources.
package secrets

import (
	"os"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// Secret is a credential value with a redacting Stringer so it cannot
// leak through log formatting.
type Secret string

func (s Secret) String() string { return "[redacted]" }

// GoString keeps %#v output redacted as well.
func (s Secret) GoString() string { return `secrets.Secret("[redacted]")` }

// Value returns the underlying credential.
func (s Secret) Value() string { return string(s) }

// Credentials holds everything the controller authenticates with.
type Credentials struct {
	// ProviderToken authorizes infrastructure mutations.
	ProviderToken Secret
	// StateAccessKey and StateSecretKey authorize the state store.
	StateAccessKey Secret
	StateSecretKey Secret
}

// Provider hands out credentials. The store backing it is an external
// collaborator; this controller only reads.
type Provider interface {
	Credentials() (Credentials, error)
}

// Environment variable names the env provider reads.
const (
	EnvProviderToken  = "GATEHOUSE_HCLOUD_TOKEN"
	EnvStateAccessKey = "GATEHOUSE_STATE_ACCESS_KEY"
	EnvStateSecretKey = "GATEHOUSE_STATE_SECRET_KEY"
)

// EnvProvider reads credentials from the process environment, the
// usual injection path for CI triggers.
type EnvProvider struct{}

var _ Provider = EnvProvider{}

// Credentials implements Provider. A missing provider token is an
// input error; state credentials are optional because the local
// store needs none.
func (EnvProvider) Credentials() (Credentials, error) {
	token := os.Getenv(EnvProviderToken)
	if token == "" {
		return Credentials{}, errdefs.Inputf("%s is not set", EnvProviderToken)
	}
	return Credentials{
		ProviderToken:  Secret(token),
		StateAccessKey: Secret(os.Getenv(EnvStateAccessKey)),
		StateSecretKey: Secret(os.Getenv(EnvStateSecretKey)),
	}, nil
}

// StaticProvider returns fixed credentials, for tests.
type StaticProvider struct {
	Creds Credentials
}

var _ Provider = StaticProvider{}

// Credentials implements Provider.
func (p StaticProvider) Credentials() (Credentials, error) {
	return p.Creds, nil
}
