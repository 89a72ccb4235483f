//go:build tools
// +build tools

// Package tools pins the code generators used by `go generate`, so mockgen
// resolves from go.mod on a fresh checkout.
package chatrelay

import (
	_ "go.uber.org/mock/mockgen"
)
