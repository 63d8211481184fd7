// Package policy loads the operator-supplied policy document: predefined
// shards, their prefixes, exclusions, and optional static shard→SGUP
// pinning (spec.md §4.1, §6).
package policy

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Entry is one `upsf.shards` list item. Name and Prefixes are required
// for PredefinedShards(); Name and ServiceGatewayUserPlane are required for
// StaticPin(). An entry may satisfy both, either, or neither — the
// document does not separate the two concerns.
type Entry struct {
	Name                    string   `yaml:"name"`
	Prefixes                []string `yaml:"prefixes"`
	Exclude                 []string `yaml:"exclude"`
	ServiceGatewayUserPlane string   `yaml:"serviceGatewayUserPlane"`
}

type document struct {
	UPSF struct {
		Shards []Entry `yaml:"shards"`
	} `yaml:"upsf"`
}

// Loader re-reads the policy file from Path on every query, tolerating
// its absence (spec.md §4.1: "a missing file returns 'no pins / no
// shards' silently"). A malformed document is surfaced as an error so the
// caller can abort the current reconciliation tick and retry later.
type Loader struct {
	Path   string
	Logger hclog.Logger
}

// NewLoader returns a Loader reading from path, logging warnings through
// logger.
func NewLoader(path string, logger hclog.Logger) *Loader {
	return &Loader{Path: path, Logger: logger.Named("policy")}
}

// Exists reports whether the policy file is currently present.
func (l *Loader) Exists() bool {
	_, err := os.Stat(l.Path)
	return err == nil
}

func (l *Loader) read() (document, error) {
	var doc document
	data, err := os.ReadFile(l.Path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Validate attempts to read and parse the policy document without
// interpreting its entries, surfacing a malformed document as an error
// so callers can abort the current reconciliation tick up front rather
// than discover the same parse failure once per shard (spec.md §4.1:
// "a malformed document surfaces as a loader error and aborts the
// current tick").
func (l *Loader) Validate() error {
	_, err := l.read()
	return err
}

// StaticPin scans `upsf.shards` for an entry with both Name and
// ServiceGatewayUserPlane set; when shardName matches, it returns that
// SGUP name and true. Entries missing either field are skipped with a
// warning (spec.md §4.1).
func (l *Loader) StaticPin(shardName string) (string, bool, error) {
	doc, err := l.read()
	if err != nil {
		return "", false, err
	}
	for _, entry := range doc.UPSF.Shards {
		if entry.Name == "" || entry.ServiceGatewayUserPlane == "" {
			l.Logger.Warn("policy entry missing name or serviceGatewayUserPlane, skipping", "entry", entry)
			continue
		}
		if entry.Name == shardName {
			return entry.ServiceGatewayUserPlane, true, nil
		}
	}
	return "", false, nil
}

// PredefinedShards returns every entry carrying at least Name and
// Prefixes; entries missing either are skipped with a warning
// (spec.md §4.1).
func (l *Loader) PredefinedShards() ([]Entry, error) {
	doc, err := l.read()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(doc.UPSF.Shards))
	for _, entry := range doc.UPSF.Shards {
		if entry.Name == "" || len(entry.Prefixes) == 0 {
			l.Logger.Warn("policy entry missing name or prefixes, skipping", "entry", entry)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
