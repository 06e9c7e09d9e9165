package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/apicore/domain/endpoint"
	"github.com/mitchellh/mapstructure"
)

// EndpointStore implements ports.RemoteEndpointStore against the remote
// config service.
//
// API Contract:
//
//	GET /endpoints
//	Response: {"success": true, "data": {"<key>": {...endpoint...}}}
//
//	PUT /endpoints
//	Request:  {"<key>": {...endpoint...}}
//	Response: {"success": true}
//
// Endpoint payloads are decoded loosely: numbers sent as strings and
// similar drift from hand-edited configs are accepted.
type EndpointStore struct {
	client *Client
	path   string
}

// NewEndpointStore creates a remote endpoint store.
func NewEndpointStore(client *Client) *EndpointStore {
	return &EndpointStore{client: client, path: "/endpoints"}
}

type getAllResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error,omitempty"`
}

type saveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GetAll fetches the stored collection. A 404 is an empty collection.
func (s *EndpointStore) GetAll(ctx context.Context) (endpoint.Collection, error) {
	var resp getAllResponse
	if err := s.client.Get(ctx, s.path, &resp); err != nil {
		if IsNotFound(err) {
			return endpoint.Collection{}, nil
		}
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("remote store rejected read: %s", resp.Error)
	}

	out := make(endpoint.Collection, len(resp.Data))
	for key, raw := range resp.Data {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decode endpoint %s: %w", key, err)
		}
		if rec.Key == "" {
			rec.Key = key
		}
		out[key] = rec.Endpoint()
	}
	return out, nil
}

// Save replaces the stored collection.
func (s *EndpointStore) Save(ctx context.Context, c endpoint.Collection) error {
	body := make(map[string]endpoint.Record, len(c))
	for k, e := range c {
		body[k] = e.ToRecord()
	}

	var resp saveResponse
	if err := s.client.Put(ctx, s.path, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("remote store rejected write: %s", resp.Error)
	}
	return nil
}

func decodeRecord(raw any) (endpoint.Record, error) {
	var rec endpoint.Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return rec, err
	}
	if err := dec.Decode(raw); err != nil {
		return rec, err
	}
	return rec, nil
}
