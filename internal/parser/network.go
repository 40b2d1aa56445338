package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"netpath-verifier/internal/model"
)

// ParseNetwork decodes a network.json topology export.
func ParseNetwork(r io.Reader) (*model.Network, error) {
	var network model.Network
	if err := json.NewDecoder(r).Decode(&network); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	if len(network.Switches) == 0 {
		return nil, fmt.Errorf("network has no switches")
	}
	return &network, nil
}
