package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprint hashes "upName/joined-nc-names" with SHA-256 so repeated
// sweeps can cheaply detect an unchanged desired state and skip the
// write that would otherwise retrigger a watch event (spec.md §4.4.a/e,
// GLOSSARY "Fingerprint"). ncNames must already be in the stable order
// the caller intends to write, since the join order is part of the hash
// input.
func fingerprint(upName string, ncNames []string) string {
	sum := sha256.Sum256([]byte(upName + "/" + strings.Join(ncNames, ",")))
	return hex.EncodeToString(sum[:])
}
