package plugin

import (
	"errors"
	"fmt"
)

// IsolationStrategy enforces capability restrictions around a plugin's
// lifecycle. Validate runs at registration, Prepare before Start, Cleanup
// after Stop.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
	Prepare(info Info) error
	Cleanup(info Info) error
}

// CapabilityGate is the default strategy: it checks requested capabilities
// against the policy and does nothing at runtime. Sandboxing strategies can
// be supplied through WithIsolationStrategy.
type CapabilityGate struct{}

// Validate rejects plugins requesting denied or unlisted capabilities.
func (CapabilityGate) Validate(info Info, policy IsolationPolicy) error {
	denied := make(map[Capability]struct{}, len(policy.DeniedCapabilities))
	for _, capability := range policy.DeniedCapabilities {
		denied[capability] = struct{}{}
	}
	for _, capability := range info.Capabilities {
		if _, ok := denied[capability]; ok {
			return fmt.Errorf("capability %s is explicitly denied", capability)
		}
	}
	if len(policy.AllowedCapabilities) == 0 {
		return nil
	}
	allowed := make(map[Capability]struct{}, len(policy.AllowedCapabilities))
	for _, capability := range policy.AllowedCapabilities {
		allowed[capability] = struct{}{}
	}
	for _, capability := range info.Capabilities {
		if _, ok := allowed[capability]; !ok {
			return fmt.Errorf("capability %s not permitted", capability)
		}
	}
	return nil
}

// Prepare implements IsolationStrategy.
func (CapabilityGate) Prepare(Info) error { return nil }

// Cleanup implements IsolationStrategy.
func (CapabilityGate) Cleanup(Info) error { return nil }

// NewIsolationStrategy returns the default strategy when none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return CapabilityGate{}
	}
	return strategy
}

// MergePolicies combines the manager defaults with a plugin-specific policy.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	merged := plugin.Merge(defaults)
	if len(merged.AllowedCapabilities) == 0 && len(merged.DeniedCapabilities) == 0 {
		return defaults
	}
	return merged
}

// EnsurePolicy fails registration when a plugin requests capabilities but no
// policy constrains them.
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if len(info.Capabilities) == 0 {
		return nil
	}
	if len(policy.AllowedCapabilities) == 0 && len(policy.DeniedCapabilities) == 0 {
		return errors.New("plugins declaring capabilities require an isolation policy")
	}
	return nil
}
