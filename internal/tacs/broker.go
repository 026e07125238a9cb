package tacs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// defaultProxyTimeout bounds a proxied request against the agent side
// before the broker returns a 501 to the caller.
const defaultProxyTimeout = 30 * time.Second

// uri scheme prefixes.
const (
	schemeAgent  = "agent:"
	schemeProbe  = "probe:"
	schemeSystem = "system:"
)

// SystemProbesURI is the well-known uri PROBE-EVENT notifications are
// published on.
const SystemProbesURI = "system:probes"

// ProbeEvent is the payload of a PROBE-EVENT notification.
type ProbeEvent struct {
	Reason   string `json:"reason"`
	AgentURI string `json:"agent_uri,omitempty"`
	ProbeURI string `json:"probe_uri,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// Reason values for ProbeEvent.
const (
	ReasonAgentRegistered    = "agent-registered"
	ReasonAgentUnregistered  = "agent-unregistered"
	ReasonProbeRegistered    = "probe-registered"
	ReasonProbeUnregistered  = "probe-unregistered"
	ReasonProbeLocked        = "probe-locked"
	ReasonProbeUnlocked      = "probe-unlocked"
)

// Broker is the stateless two-sided agent controller. It
// keeps no transaction state beyond the synchronous channel-level
// proxy.
type Broker struct {
	Registry      *Registry
	ProxyTimeout  time.Duration
	metrics       *Metrics
}

// NewBroker constructs a Broker bound to registry.
func NewBroker(registry *Registry) *Broker {
	return &Broker{Registry: registry, ProxyTimeout: defaultProxyTimeout, metrics: newMetrics()}
}

// OnNorthbound is the Handler installed on every accepted Ia channel.
func (b *Broker) OnNorthbound(c *Channel, f Frame) {
	if f.Kind != KindRequest {
		slog.Warn("tacs: unexpected northbound frame kind", "kind", f.Kind, "channel_id", c.ID)
		return
	}
	status, reason, body := b.handleNorthbound(c, f)
	_ = c.Send(NewResponse(f, status, reason, body))
}

// OnSouthbound is the Handler installed on every accepted Xa channel.
func (b *Broker) OnSouthbound(agentURI *string, c *Channel, f Frame) {
	switch f.Kind {
	case KindRequest:
		status, reason, body := b.handleSouthbound(agentURI, c, f)
		_ = c.Send(NewResponse(f, status, reason, body))
	case KindNotification:
		b.dispatchNotification(f)
	default:
		slog.Warn("tacs: unexpected southbound frame kind", "kind", f.Kind, "channel_id", c.ID)
	}
}

// handleNorthbound implements every Ia operation.
func (b *Broker) handleNorthbound(c *Channel, f Frame) (status int, reason string, body any) {
	switch f.Method {
	case "LOCK":
		if err := b.Registry.Lock(f.URI, c.ID); err != nil {
			s, r := statusFor(err)
			return s, r, nil
		}
		b.Registry.Subscribe(f.URI, c)
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeLocked, ProbeURI: f.URI})
		return StatusOK, "OK", nil

	case "UNLOCK":
		if err := b.Registry.Unlock(f.URI, c.ID); err != nil {
			s, r := statusFor(err)
			return s, r, nil
		}
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeUnlocked, ProbeURI: f.URI})
		return StatusOK, "OK", nil

	case "GET-AGENTS":
		return StatusOK, "OK", b.Registry.Agents()

	case "GET-PROBES":
		return StatusOK, "OK", b.Registry.Probes()

	case "GET-PROBE":
		p, ok := b.Registry.Probe(f.URI)
		if !ok {
			return StatusNotFound, "not found", nil
		}
		return StatusOK, "OK", p

	case "GET-VARIABLES":
		return StatusOK, "OK", map[string]any{
			"agents": len(b.Registry.Agents()),
			"probes": len(b.Registry.Probes()),
		}

	case "SUBSCRIBE":
		b.Registry.Subscribe(f.URI, c)
		return StatusOK, "OK", nil

	case "UNSUBSCRIBE":
		b.Registry.Unsubscribe(f.URI, c.ID)
		return StatusOK, "OK", nil

	case "DEPLOY", "UNDEPLOY", "RESTART", "UPDATE":
		return b.proxyToAgent(f)

	case "TRI-SEND", "TRI-EXECUTE-TESTCASE", "TRI-MAP", "TRI-UNMAP", "TRI-SA-RESET":
		return b.proxyToProbe(f)

	default:
		s, r := statusFor(errUnsupportedMethod)
		return s, r, nil
	}
}

// handleSouthbound implements the REGISTER/UNREGISTER/GET/LOG/
// TRI-ENQUEUE-MSG operations agents issue.
func (b *Broker) handleSouthbound(agentURI *string, c *Channel, f Frame) (status int, reason string, body any) {
	switch f.Method {
	case "REGISTER":
		return b.handleRegister(agentURI, c, f)

	case "UNREGISTER":
		return b.handleUnregister(agentURI, f)

	case "GET":
		// Document-root file fetch for update components is out of scope
		// for this broker: it only validates the request shape here and
		// defers actual filesystem service to the document-root
		// collaborator (an external interface, never implemented by this
		// package).
		return StatusUnsupportedCapability, "document-root fetch is not implemented by this broker", nil

	case "LOG", "TRI-ENQUEUE-MSG":
		b.dispatchNotification(f)
		return StatusOK, "OK", nil

	default:
		s, r := statusFor(errUnsupportedMethod)
		return s, r, nil
	}
}

// registerBody is the REGISTER payload, discriminated by whether
// ProbeType is present (probe-scope) or absent (agent-scope).
type registerBody struct {
	URI             string   `json:"uri"`
	Contact         string   `json:"contact"`
	UserAgent       string   `json:"user_agent,omitempty"`
	SupportedProbes []string `json:"supported_probes,omitempty"`
	ProbeType       string   `json:"probe_type,omitempty"`
	ProbeName       string   `json:"probe_name,omitempty"`
	AgentURI        string   `json:"agent_uri,omitempty"`
}

func (b *Broker) handleRegister(agentURI *string, c *Channel, f Frame) (int, string, any) {
	var rb registerBody
	if err := json.Unmarshal(f.Body, &rb); err != nil {
		return StatusInternalError, "malformed REGISTER body", nil
	}

	if rb.ProbeType == "" {
		// Agent-scope registration.
		a := &Agent{URI: rb.URI, Contact: rb.Contact, UserAgent: rb.UserAgent, SupportedProbes: rb.SupportedProbes, Channel: c}
		b.Registry.RegisterAgent(a)
		*agentURI = rb.URI
		b.metrics.agentsRegistered.Inc()
		b.publishProbeEvent(ProbeEvent{Reason: ReasonAgentRegistered, AgentURI: rb.URI, Contact: rb.Contact})
		return StatusOK, "OK", nil
	}

	// Probe-scope registration.
	owner := rb.AgentURI
	if owner == "" {
		owner = *agentURI
	}
	p := &Probe{URI: rb.URI, Name: rb.ProbeName, Type: rb.ProbeType, Contact: rb.Contact, AgentURI: owner, Locks: make(map[string]bool)}
	b.Registry.RegisterProbe(p)
	b.metrics.probesRegistered.Inc()
	b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeRegistered, ProbeURI: rb.URI, AgentURI: owner, Contact: rb.Contact})
	return StatusOK, "OK", nil
}

func (b *Broker) handleUnregister(agentURI *string, f Frame) (int, string, any) {
	var rb registerBody
	if err := json.Unmarshal(f.Body, &rb); err != nil {
		return StatusInternalError, "malformed UNREGISTER body", nil
	}

	if rb.ProbeType != "" || (rb.URI != "" && strings.HasPrefix(rb.URI, schemeProbe)) {
		p, ok := b.Registry.UnregisterProbe(rb.URI)
		if !ok {
			return StatusNotFound, "not found", nil
		}
		b.metrics.probesRegistered.Dec()
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeUnregistered, ProbeURI: p.URI, AgentURI: p.AgentURI})
		return StatusOK, "OK", nil
	}

	probes, ok := b.Registry.UnregisterAgent(rb.URI)
	if !ok {
		return StatusNotFound, "not found", nil
	}
	*agentURI = ""
	b.metrics.agentsRegistered.Dec()
	for _, p := range probes {
		b.metrics.probesRegistered.Dec()
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeUnregistered, ProbeURI: p.URI, AgentURI: p.AgentURI})
	}
	b.publishProbeEvent(ProbeEvent{Reason: ReasonAgentUnregistered, AgentURI: rb.URI})
	return StatusOK, "OK", nil
}

// proxyToAgent rewrites and forwards an agent-addressed request to its
// owning agent channel, blocking the caller's transaction on the
// response verbatim.
func (b *Broker) proxyToAgent(f Frame) (int, string, any) {
	a, ok := b.Registry.Agent(f.URI)
	if !ok {
		s, r := statusFor(errAgentNotFound)
		return s, r, nil
	}
	return b.forward(a.Channel, f)
}

// proxyToProbe resolves the probe's owning agent, checks that agent
// still supports the probe's type, and forwards the request.
func (b *Broker) proxyToProbe(f Frame) (int, string, any) {
	p, ok := b.Registry.Probe(f.URI)
	if !ok {
		s, r := statusFor(ErrProbeNotFound)
		return s, r, nil
	}
	a, ok := b.Registry.Agent(p.AgentURI)
	if !ok {
		s, r := statusFor(errAgentNotFound)
		return s, r, nil
	}
	if !supportsType(a, p.Type) {
		s, r := statusFor(errUnsupportedCapability)
		return s, r, nil
	}
	return b.forward(a.Channel, f)
}

func supportsType(a *Agent, probeType string) bool {
	for _, t := range a.SupportedProbes {
		if t == probeType {
			return true
		}
	}
	return false
}

func (b *Broker) forward(agentChannel *Channel, f Frame) (int, string, any) {
	if agentChannel == nil {
		s, r := statusFor(errAgentNotFound)
		return s, r, nil
	}
	txn := fmt.Sprintf("tacs-%s", f.TxnID)
	req := f
	req.TxnID = txn
	req.Kind = KindRequest
	resp, err := agentChannel.Request(req, b.ProxyTimeout)
	if err != nil {
		s, r := statusFor(err)
		return s, r, nil
	}
	return resp.Status, resp.Reason, json.RawMessage(resp.Body)
}

// dispatchNotification delivers a LOG/TRI-ENQUEUE-MSG/PROBE-EVENT
// notification to every current subscriber of its uri, snapshotting the
// subscriber set before sending so no table lock is held during I/O.
func (b *Broker) dispatchNotification(f Frame) {
	for _, c := range b.Registry.Subscribers(f.URI) {
		if err := c.Send(f); err != nil {
			slog.Warn("tacs: notification delivery failed, skipping subscriber",
				"uri", f.URI, "channel_id", c.ID, "error", err)
		}
	}
}

func (b *Broker) publishProbeEvent(ev ProbeEvent) {
	b.dispatchNotification(NewNotification("PROBE-EVENT", SystemProbesURI, ev))
}

// DisconnectAgent handles a lost southbound agent channel: cascades
// into probe-unregistered events for every probe it owned plus an
// agent-unregistered event.
func (b *Broker) DisconnectAgent(agentURI string) {
	if agentURI == "" {
		return
	}
	probes, ok := b.Registry.UnregisterAgent(agentURI)
	if !ok {
		return
	}
	b.metrics.agentsRegistered.Dec()
	for _, p := range probes {
		b.metrics.probesRegistered.Dec()
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeUnregistered, ProbeURI: p.URI, AgentURI: p.AgentURI})
	}
	b.publishProbeEvent(ProbeEvent{Reason: ReasonAgentUnregistered, AgentURI: agentURI})
}

// DisconnectClient handles a lost northbound client channel: releases
// every lock it held and purges its subscriptions, then
// emits the corresponding probe-unlocked events.
func (b *Broker) DisconnectClient(c *Channel) {
	released := b.Registry.PurgeChannel(c.ID)
	for _, uri := range released {
		b.publishProbeEvent(ProbeEvent{Reason: ReasonProbeUnlocked, ProbeURI: uri})
	}
}

// Metrics exposes the broker's Prometheus gauges for /metrics.
func (b *Broker) Metrics() *Metrics { return b.metrics }

// Shutdown is a no-op hook kept for symmetry with Scheduler.Stop; the
// broker holds no background goroutines of its own beyond the per-
// channel Run loops owned by the transport layer.
func (b *Broker) Shutdown(_ context.Context) {}
