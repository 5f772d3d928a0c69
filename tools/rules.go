//go:build ruleguard
// +build ruleguard

package gorules

import (
	logfatal "github.com/ennyjfrick/ruleguard-logfatal"
	"github.com/quasilyte/go-ruleguard/dsl"
)

func init() {
	dsl.ImportRules("logfatal", logfatal.Bundle)
}

// Only the command decides the exit status; packages return errors.
func noOsExit(m dsl.Matcher) {
	m.Match(`os.Exit($_)`).
		Where(!m.File().PkgPath.Matches(`/cmd/`)).
		Report(`return an error instead of calling os.Exit outside cmd/`)
}
