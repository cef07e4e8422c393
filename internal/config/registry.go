package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
)

type registryNetwork struct {
	ChainID   int64                                     `yaml:"chain_id"`
	Contracts map[model.ContractRole]*model.ContractRef `yaml:"contracts"`
}

type registryFile struct {
	Base *registryNetwork `yaml:"base"`
	TON  *registryNetwork `yaml:"ton"`
}

// LoadRegistry reads the tracked-contract registry from a YAML file.
func LoadRegistry(path string) (*model.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry builds a typed registry from YAML bytes.
func ParseRegistry(raw []byte) (*model.Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	var refs []*model.ContractRef
	var baseChainID int64
	if file.Base != nil {
		baseChainID = file.Base.ChainID
		for role, ref := range file.Base.Contracts {
			ref.Network = model.NetworkBase
			ref.Role = role
			refs = append(refs, ref)
		}
	}
	if file.TON != nil {
		for role, ref := range file.TON.Contracts {
			ref.Network = model.NetworkTON
			ref.Role = role
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("parse registry: no contracts defined")
	}

	reg, err := model.NewRegistry(baseChainID, refs...)
	if err != nil {
		return nil, err
	}
	return reg, nil
}
