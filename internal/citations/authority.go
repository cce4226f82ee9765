package citations

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultAuthorityWeight is assigned to domains absent from the table whose
// TLD is also unknown.
const DefaultAuthorityWeight = 30

// AuthorityTable maps normalized domains to reputation weights in [0,100].
// Lookups fall back from exact domain to TLD to DefaultAuthorityWeight.
// The table is read-only after construction.
type AuthorityTable struct {
	domains map[string]int
	tlds    map[string]int
}

// DefaultAuthorityTable returns the built-in static weights.
func DefaultAuthorityTable() *AuthorityTable {
	return &AuthorityTable{
		domains: map[string]int{
			"wikipedia.org":     95,
			"forbes.com":        80,
			"nytimes.com":       80,
			"reuters.com":       78,
			"bloomberg.com":     75,
			"stackoverflow.com": 75,
			"techcrunch.com":    70,
			"github.com":        70,
			"linkedin.com":      65,
			"medium.com":        60,
		},
		tlds: map[string]int{
			"gov": 90,
			"edu": 85,
			"org": 50,
			"io":  45,
			"com": 40,
			"net": 35,
		},
	}
}

// authorityFile is the YAML shape for an externally maintained table.
type authorityFile struct {
	Domains map[string]int `yaml:"domains"`
	TLDs    map[string]int `yaml:"tlds"`
}

// LoadAuthorityTable reads a YAML authority table and merges it over the
// built-in defaults. File entries win on conflict.
func LoadAuthorityTable(path string) (*AuthorityTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "citations: read authority table %s", path)
	}

	var f authorityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "citations: parse authority table")
	}

	t := DefaultAuthorityTable()
	for d, w := range f.Domains {
		t.domains[strings.ToLower(d)] = clampWeight(w)
	}
	for tld, w := range f.TLDs {
		t.tlds[strings.ToLower(tld)] = clampWeight(w)
	}
	return t, nil
}

// Weight returns the authority weight for a normalized domain.
func (t *AuthorityTable) Weight(domain string) int {
	domain = strings.ToLower(domain)
	if w, ok := t.domains[domain]; ok {
		return w
	}
	if i := strings.LastIndexByte(domain, '.'); i >= 0 {
		if w, ok := t.tlds[domain[i+1:]]; ok {
			return w
		}
	}
	return DefaultAuthorityWeight
}

func clampWeight(w int) int {
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}
