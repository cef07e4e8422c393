package model

import (
	"fmt"
	"sort"
	"strings"
)

// ContractRole names a tracked contract within a network ("mint",
// "reward", "sponsor", ...). Roles are registry keys, not chain data.
type ContractRole string

// ContractRef is one tracked contract with its normalization parameters.
// This replaces attribute-style lookup into a nested config blob with an
// explicit typed mapping.
type ContractRef struct {
	Network Network      `yaml:"-"`
	Role    ContractRole `yaml:"-"`
	Address string       `yaml:"address"`

	// ValueWordIndex/ValueDecimals configure calldata value extraction
	// for EVM contracts whose interesting amount is not the native value
	// field. ValueWordIndex is nil when the native value applies.
	ValueWordIndex *int `yaml:"value_word_index"`
	ValueDecimals  int  `yaml:"value_decimals"`

	// RewardWallet is the jetton wallet whose outgoing transfers count
	// as reward withdrawals (TON reward contract only).
	RewardWallet string `yaml:"reward_wallet"`
}

// StoredContract returns the contract dimension as persisted: EVM
// addresses lowercased, TON addresses kept as-is (base64url is
// case-sensitive).
func (c ContractRef) StoredContract() string {
	if c.Network == NetworkBase {
		return strings.ToLower(c.Address)
	}
	return c.Address
}

// Registry holds all tracked contracts across both networks.
type Registry struct {
	BaseChainID int64
	contracts   map[Network]map[ContractRole]*ContractRef
}

// NewRegistry builds a registry from parsed contract entries. Each ref
// must carry its Network and Role.
func NewRegistry(baseChainID int64, refs ...*ContractRef) (*Registry, error) {
	r := &Registry{
		BaseChainID: baseChainID,
		contracts:   make(map[Network]map[ContractRole]*ContractRef),
	}
	for _, ref := range refs {
		if !ref.Network.Valid() {
			return nil, fmt.Errorf("registry: %s/%s has unknown network", ref.Network, ref.Role)
		}
		if r.contracts[ref.Network] == nil {
			r.contracts[ref.Network] = make(map[ContractRole]*ContractRef)
		}
		r.contracts[ref.Network][ref.Role] = ref
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) validate() error {
	for network, byRole := range r.contracts {
		for role, ref := range byRole {
			if strings.TrimSpace(ref.Address) == "" {
				return fmt.Errorf("registry: %s/%s has no address", network, role)
			}
			if ref.ValueWordIndex != nil && ref.ValueDecimals <= 0 {
				return fmt.Errorf("registry: %s/%s has value_word_index without value_decimals", network, role)
			}
		}
	}
	return nil
}

// Lookup returns the contract for (network, role), or nil.
func (r *Registry) Lookup(network Network, role ContractRole) *ContractRef {
	byRole, ok := r.contracts[network]
	if !ok {
		return nil
	}
	return byRole[role]
}

// All returns every tracked contract, ordered by network then role so the
// orchestrator visits pairs deterministically.
func (r *Registry) All() []*ContractRef {
	var refs []*ContractRef
	for _, byRole := range r.contracts {
		for _, ref := range byRole {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Network != refs[j].Network {
			return refs[i].Network < refs[j].Network
		}
		return refs[i].Role < refs[j].Role
	})
	return refs
}
