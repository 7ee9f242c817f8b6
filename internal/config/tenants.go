package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"antbox-backend/pkg/errors"
)

// Tenant is one named repository partition. A tenant may carry its
// own root password; when empty the server-wide one applies.
type Tenant struct {
	Name             string `yaml:"name"`
	RootPasswordHash string `yaml:"rootPasswordHash,omitempty"`
}

type tenantsFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// LoadTenants reads the tenants file and guarantees the default
// tenant is present. A missing file path yields just the default.
func LoadTenants(path, defaultTenant string) ([]Tenant, error) {
	tenants := []Tenant{{Name: defaultTenant}}
	if path == "" {
		return tenants, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewUnknownError("cannot read tenants file: "+path, err)
	}

	var file tenantsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.NewBadRequestError("tenants file is not valid YAML: " + err.Error())
	}

	seen := map[string]bool{}
	var errs []error
	for i, t := range file.Tenants {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tenants[%d]: name is required", i))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("tenants[%d]: duplicate name %q", i, t.Name))
			continue
		}
		seen[t.Name] = true
		if t.Name != defaultTenant {
			tenants = append(tenants, t)
		} else {
			tenants[0] = t
		}
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return nil, err
	}
	return tenants, nil
}
