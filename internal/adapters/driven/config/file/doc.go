// Package file implements the ConfigStore port backed by a TOML file
// in the mnemo config directory.
package file
