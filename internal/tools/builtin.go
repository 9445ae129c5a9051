package tools

import (
	"strings"

	"github.com/svaddadi/roomagent/internal/backend"
)

const (
	GeneralLookupName = "general_lookup"
	ClientDataName    = "client_data_lookup"
)

// BackendConfig locates the knowledge backend provider.
type BackendConfig struct {
	BaseURL     string
	BearerToken string
}

// NewDefaultRegistry builds the registry with the two production tools:
// a general knowledge lookup and a client-data lookup. Both hit the same
// provider under different endpoints.
func NewDefaultRegistry(client *backend.Client, cfg BackendConfig) (*Registry, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	r := NewRegistry(client, cfg.BearerToken)

	promptParams := []Param{
		{Name: "prompt", Type: "string", Required: true},
		{Name: "app_prompt", Type: "string", Required: false},
		{Name: "app_ref_code", Type: "string", Required: false},
	}

	if err := r.Register(Descriptor{
		Kind: KindGeneralLookup,
		Name: GeneralLookupName,
		Description: "Look up general, non-personalized information such as company " +
			"policies, procedures or product knowledge.",
		Params:   promptParams,
		Endpoint: base + "/voice/rag",
	}); err != nil {
		return nil, err
	}

	if err := r.Register(Descriptor{
		Kind: KindClientData,
		Name: ClientDataName,
		Description: "Look up a specific client's personal or financial data, such as " +
			"their portfolio, balances or account details.",
		Params:   promptParams,
		Endpoint: base + "/voice/infinity",
	}); err != nil {
		return nil, err
	}

	return r, nil
}
