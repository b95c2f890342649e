package backend

import (
	"fmt"
	"net/url"
	"strings"
)

type Mode string

const (
	// ModeDirect talks straight to the processing backend.
	ModeDirect Mode = "direct"
	// ModeGateway routes through the API-management layer, which prefixes
	// every processing route.
	ModeGateway Mode = "gateway"
)

// Endpoints resolves per-resource processing URLs for the active deployment
// mode. URL construction is kept out of the tracker core so the core stays
// transport-agnostic.
type Endpoints struct {
	mode    Mode
	baseURL string
}

func NewEndpoints(mode Mode, baseURL, gatewayURL string) (*Endpoints, error) {
	switch mode {
	case ModeDirect:
		if strings.TrimSpace(baseURL) == "" {
			return nil, fmt.Errorf("backend base url is required in direct mode")
		}
		return &Endpoints{mode: mode, baseURL: strings.TrimRight(baseURL, "/")}, nil
	case ModeGateway:
		if strings.TrimSpace(gatewayURL) == "" {
			return nil, fmt.Errorf("gateway base url is required in gateway mode")
		}
		return &Endpoints{mode: mode, baseURL: strings.TrimRight(gatewayURL, "/") + "/api/extraction"}, nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", mode)
	}
}

func (e *Endpoints) Mode() Mode {
	return e.mode
}

func (e *Endpoints) StreamURL(ownerID, resourceID string) string {
	return e.resourceURL(ownerID, resourceID) + "/process/stream"
}

func (e *Endpoints) AbortURL(ownerID, resourceID string) string {
	return e.resourceURL(ownerID, resourceID) + "/process/abort"
}

func (e *Endpoints) resourceURL(ownerID, resourceID string) string {
	return e.baseURL + "/" + url.PathEscape(ownerID) + "/" + url.PathEscape(resourceID)
}
