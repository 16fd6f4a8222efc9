// Package version reports which relaychat build is running. The values are
// stamped by the linker:
//
//	go build -ldflags "-X github.com/NicolasHaas/relaychat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/relaychat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/relaychat/pkg/version.date=2026-01-01" ./cmd/server
package version

const unset = "unknown"

var (
	tag    = ""    // release tag, empty for untagged builds
	commit = unset // short commit SHA
	date   = unset // build date
)

// String is the short form logged by the server at startup: the tag, else
// the commit, else "dev".
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != unset:
		return commit
	default:
		return "dev"
	}
}

// Full is the form printed by -version, including commit and build date
// when they are known.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != unset:
		return commit + " built " + date
	default:
		return "dev"
	}
}
