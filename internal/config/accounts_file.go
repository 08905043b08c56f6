package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccountEntry is one account in an import file
type AccountEntry struct {
	Phone      string `yaml:"phone"`
	AreaCode   string `yaml:"area_code"`
	LoginParam string `yaml:"login_param,omitempty"`
}

// AccountsFile is the YAML layout of an account import file:
//
//	accounts:
//	  - phone: "5550100"
//	    area_code: "+1"
//	    login_param: "query_id=..."
type AccountsFile struct {
	Accounts []AccountEntry `yaml:"accounts"`
}

// LoadAccountsFile reads and validates an account import file
func LoadAccountsFile(path string) ([]AccountEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file AccountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i := range file.Accounts {
		e := &file.Accounts[i]
		e.Phone = strings.TrimSpace(e.Phone)
		e.AreaCode = strings.TrimSpace(e.AreaCode)
		if e.Phone == "" {
			return nil, fmt.Errorf("account #%d: phone is required", i+1)
		}
		if seen[e.Phone] {
			return nil, fmt.Errorf("account #%d: duplicate phone %s", i+1, e.Phone)
		}
		seen[e.Phone] = true
	}
	return file.Accounts, nil
}
