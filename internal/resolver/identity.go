package resolver

import (
	"errors"
	"os"
	"os/user"
	"strings"
)

// IdentitySource returns the login name of the user running the process.
type IdentitySource func() (string, error)

// CurrentLogin reads the OS account of the running process, falling back to
// $USER / $USERNAME when the account database is unavailable.
func CurrentLogin() (string, error) {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username, nil
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value, nil
		}
	}
	return "", errors.New("resolver: current user is unknown")
}

// StaticLogin always reports login.
func StaticLogin(login string) IdentitySource {
	return func() (string, error) {
		return login, nil
	}
}
