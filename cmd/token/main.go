// Package main issues bearer tokens for the job API, signed with the same
// secret the server validates against (JOBPIPE_AUTH_JWT_SECRET).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/phrazzld/jobpipe/internal/api/middleware"
	"github.com/phrazzld/jobpipe/internal/config"
)

const secretEnv = config.EnvPrefix + "_AUTH_JWT_SECRET"

func main() {
	secret := flag.String("secret", os.Getenv(secretEnv), "HS256 signing secret (default $"+secretEnv+")")
	subject := flag.String("subject", "jobpipe-client", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if len(*secret) < 32 {
		fmt.Fprintf(os.Stderr, "signing secret must be at least 32 characters; set %s or -secret\n", secretEnv)
		os.Exit(1)
	}

	token, err := middleware.IssueToken(*secret, *subject, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
