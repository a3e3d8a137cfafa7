package gemini

import (
	"encoding/json"
	"fmt"
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexOptions - Vertex AI backend instead of per-key Gemini API sessions
type VertexOptions struct {
	Project         string
	Location        string
	CredentialsJSON string // service account JSON (deployments)
	CredentialsPath string // path to service account JSON (local)
}

// credentials - explicit JSON, then file, then Application Default Credentials
func (v *VertexOptions) credentials() (*auth.Credentials, error) {
	opts := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}

	switch {
	case v.CredentialsJSON != "":
		opts.CredentialsJSON = []byte(v.CredentialsJSON)
	case v.CredentialsPath != "":
		data, err := os.ReadFile(v.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("invalid JSON credentials: %w", err)
		}
		opts.CredentialsJSON = data
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Vertex AI credentials: %w", err)
	}
	return creds, nil
}
