package catalog

import "fmt"

// Catalog holds the configuration versions and test cases available for
// benchmarking. The benchmark core treats it as read-only.
type Catalog struct {
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description"`
	PassThreshold int             `yaml:"pass_threshold"`
	CasesFile     string          `yaml:"cases_file"`
	Versions      []ConfigVersion `yaml:"versions"`
	Cases         []TestCase      `yaml:"-"` // loaded separately from CSV

	versionsByID map[string]*ConfigVersion
	casesByID    map[string]*TestCase
}

// New builds a catalog from in-memory versions and cases, for callers that
// do not load from a catalog directory.
func New(name string, versions []ConfigVersion, cases []TestCase) (*Catalog, error) {
	c := &Catalog{
		Name:     name,
		Versions: versions,
		Cases:    cases,
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// index builds the id lookup maps, rejecting blank and duplicate ids.
func (c *Catalog) index() error {
	c.versionsByID = make(map[string]*ConfigVersion, len(c.Versions))
	for i := range c.Versions {
		v := &c.Versions[i]
		if v.ID == "" {
			return fmt.Errorf("catalog %q: version %d has no id", c.Name, i)
		}
		if _, dup := c.versionsByID[v.ID]; dup {
			return fmt.Errorf("catalog %q: duplicate version id %q", c.Name, v.ID)
		}
		c.versionsByID[v.ID] = v
	}
	c.casesByID = make(map[string]*TestCase, len(c.Cases))
	for i := range c.Cases {
		tc := &c.Cases[i]
		if _, dup := c.casesByID[tc.ID]; dup {
			return fmt.Errorf("catalog %q: duplicate case id %q", c.Name, tc.ID)
		}
		c.casesByID[tc.ID] = tc
	}
	return nil
}

// ConfigVersion is one named configuration of the conversational service.
// Immutable for the duration of a batch.
type ConfigVersion struct {
	ID     string        `yaml:"id" json:"id"`
	Name   string        `yaml:"name" json:"name"`
	Params VersionParams `yaml:"params" json:"params"`
}

// VersionParams parameterizes calls to the conversational service for one
// version. The core does not interpret these beyond passing them to the
// client factory.
type VersionParams struct {
	Model         string  `yaml:"model" json:"model"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
	SystemMessage string  `yaml:"system_message" json:"system_message"`
	Endpoint      string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// TestCase is one question plus its required answer keywords.
type TestCase struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	ExpectedAnswer string   `json:"expected_answer"`
	Keywords       []string `json:"keywords"`
	Active         bool     `json:"active"`
}
