// Command issue-token prints a bearer token for a profile, for use with
// AUTH_MODE=jwt.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nurpe/marketplace-ledger/internal/auth"
)

func main() {
	profileID := pflag.UintP("profile", "p", 0, "profile id to issue the token for")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.Parse()

	secret := os.Getenv("JWT_ACCESS_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_ACCESS_SECRET is required")
		os.Exit(1)
	}
	if *profileID == 0 {
		fmt.Fprintln(os.Stderr, "--profile is required")
		os.Exit(2)
	}

	token, err := auth.IssueToken(secret, *profileID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
