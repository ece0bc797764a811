// Package discriminator computes the 8-byte prefixes that identify
// instructions and typed account data.
package discriminator

import (
	"bytes"
	"crypto/sha256"
)

// Size is the discriminator length in bytes.
const Size = 8

// Namespaces used by the hook program.
const (
	NamespaceGlobal    = "global"
	NamespaceInterface = "spl-transfer-hook-interface"
)

// Discriminator is an 8-byte instruction or data prefix.
type Discriminator [Size]byte

// New returns the first eight bytes of sha256("namespace:name").
func New(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:Size])
	return d
}

// Matches reports whether data starts with d.
func (d Discriminator) Matches(data []byte) bool {
	return len(data) >= Size && bytes.Equal(data[:Size], d[:])
}

// Bytes returns a copy of the discriminator.
func (d Discriminator) Bytes() []byte {
	return append([]byte(nil), d[:]...)
}

// Well-known discriminators of the transfer-hook interface.
var (
	Execute              = New(NamespaceInterface, "execute")
	InitializeExtraMetas = New(NamespaceInterface, "initialize-extra-account-metas")
	UpdateExtraMetas     = New(NamespaceInterface, "update-extra-account-metas")
)
