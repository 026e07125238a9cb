package tacs

import (
	"github.com/testerman-project/testerman-core/internal/ttcn3"
)

// ProbeAdapter implements ttcn3.Probe by forwarding a mapped port's
// outbound sends through a TACS Client as TRI-SEND requests against
// probeURI, the concrete "outbound probe adapter" seam named in
// ttcn3.Port's mapped field.
type ProbeAdapter struct {
	client   *Client
	probeURI string
}

// NewProbeAdapter binds client to probeURI.
func NewProbeAdapter(client *Client, probeURI string) *ProbeAdapter {
	return &ProbeAdapter{client: client, probeURI: probeURI}
}

// Send implements ttcn3.Probe.
func (a *ProbeAdapter) Send(value ttcn3.Value) error {
	_, err := a.client.triRequest("TRI-SEND", a.probeURI, value)
	return err
}

var _ ttcn3.Probe = (*ProbeAdapter)(nil)
