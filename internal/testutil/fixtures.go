package testutil

import (
	_ "embed"
)

// PrimaryModule is a primary module image serving a fixed route table
//
//go:embed fixtures/primary.js
var PrimaryModule []byte

// SecondaryModule is a secondary module image emulating the connection core
//
//go:embed fixtures/secondary.js
var SecondaryModule []byte
