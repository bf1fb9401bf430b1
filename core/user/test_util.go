package user

import (
	"github.com/trezcool/markit/core"
)

// ResetLinkFor returns the uid and token of a password reset link for usr.
// Used by tests that cannot read the emailed link.
func ResetLinkFor(conf *core.Config, usr User) (uid, token string) {
	return EncodeUID(usr), newTokenGenerator(conf).MakeToken(usr)
}
