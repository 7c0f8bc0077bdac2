package file

import "fmt"

// Clients is the pair of object store clients shared by every image domain.
// Internal serves all server-side reads and writes; External is only used
// to mint URLs that browsers fetch directly.
type Clients struct {
	Internal *Client
	External *Client
}

// NewClients builds both clients with the same credentials and region.
// An empty external endpoint falls back to the internal one.
func NewClients(internal Options, externalEndpoint string, externalSSL bool) (Clients, error) {
	in, err := NewClient(internal)
	if err != nil {
		return Clients{}, fmt.Errorf("internal client: %w", err)
	}

	ext := internal
	if externalEndpoint != "" {
		ext.Endpoint = externalEndpoint
		ext.UseSSL = externalSSL
	}

	out, err := NewClient(ext)
	if err != nil {
		return Clients{}, fmt.Errorf("external client: %w", err)
	}

	return Clients{Internal: in, External: out}, nil
}
