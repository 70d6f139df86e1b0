// Package gcp provides shared Google Cloud client plumbing: service-account
// credential loading and the client options passed to every Google API
// service used by kaiwa (Cloud Storage, Speech-to-Text, Text-to-Speech).
package gcp

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// ScopeCloudPlatform grants access to all Cloud APIs enabled for the project.
const ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"

// TokenSource loads the service-account key file at keyPath and returns an
// oauth2 token source for the given scopes. The key file is read once; the
// returned source refreshes tokens as needed.
func TokenSource(ctx context.Context, keyPath string, scopes ...string) (oauth2.TokenSource, error) {
	if len(scopes) == 0 {
		scopes = []string{ScopeCloudPlatform}
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("gcp: read service account key: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("gcp: parse service account key: %w", err)
	}
	return creds.TokenSource, nil
}

// ClientOptions returns the google.golang.org/api client options derived from
// the service-account key at keyPath. When keyPath is empty, application
// default credentials are used.
func ClientOptions(ctx context.Context, keyPath string) ([]option.ClientOption, error) {
	if keyPath == "" {
		return nil, nil
	}
	ts, err := TokenSource(ctx, keyPath)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}
