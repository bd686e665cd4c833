// Package manifest reads mod manifests into a format-agnostic Manifest.
//
// A mod directory carries exactly one manifest, looked up in the order
// mod.json, mod.toml, mod.hcl. Each format has its own decoder that turns the
// file into a generic document; a single validation step then builds the
// Manifest, so every format obeys the same rules.
package manifest
