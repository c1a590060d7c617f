// Package directory derives a POSIX directory view from the account
// store. Entries are computed lazily and cached until an account
// mutation invalidates them; the cache is a correctness boundary, not
// an optimization, so invalidation is explicit and never TTL based.
package directory

import (
	"strconv"

	"github.com/prn-tf/castellan/internal/domain"
)

// Attribute names emitted for each projected account.
const (
	AttrObjectClass   = "objectClass"
	AttrUID           = "uid"
	AttrCN            = "cn"
	AttrDisplayName   = "displayName"
	AttrUIDNumber     = "uidNumber"
	AttrGIDNumber     = "gidNumber"
	AttrHomeDirectory = "homeDirectory"
	AttrLoginShell    = "loginShell"
)

// objectClasses carried by every projected entry.
var objectClasses = []string{"top", "account", "posixAccount"}

// Entry is one projected directory entry.
type Entry struct {
	// DN is the distinguished name, "cn=<username>,<base>".
	DN string `json:"dn"`

	// Attributes maps attribute names to their values.
	Attributes map[string][]string `json:"attributes"`
}

// SkipReason explains why an account was left out of the projection.
type SkipReason string

const (
	SkipNoUsername SkipReason = "no username"
	SkipNoShell    SkipReason = "no shell"
	SkipNoUID      SkipReason = "no uid"
)

// skipReason classifies an unprojectable account. Returns "" when the
// account projects cleanly.
func skipReason(account *domain.Account) SkipReason {
	switch {
	case account.Username == nil || *account.Username == "":
		return SkipNoUsername
	case account.Shell == nil || *account.Shell == "":
		return SkipNoShell
	case account.UID == nil:
		return SkipNoUID
	}
	return ""
}

// mapAccount builds the directory entry for a projectable account.
func mapAccount(account *domain.Account, cfg Config) Entry {
	username := *account.Username
	return Entry{
		DN: AttrCN + "=" + username + "," + cfg.UsersBaseDN,
		Attributes: map[string][]string{
			AttrObjectClass:   objectClasses,
			AttrUID:           {username},
			AttrCN:            {username},
			AttrDisplayName:   {account.Name},
			AttrUIDNumber:     {strconv.FormatInt(*account.UID, 10)},
			AttrGIDNumber:     {strconv.FormatInt(cfg.GIDNumber, 10)},
			AttrHomeDirectory: {cfg.HomePrefix + "/" + username},
			AttrLoginShell:    {*account.Shell},
		},
	}
}
