// Package main generates service tokens for calling the stampgate API from
// local tooling or an issuance service under test.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "stampgate/internal/jwt_token"
	stringutil "stampgate/pkg/platform/strings"
)

const defaultTokenTTL = 15 * time.Minute

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Subject   string            `json:"subject"`
	Scope     []string          `json:"scope"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	fs := flag.NewFlagSet("tokengen", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("STAMPGATE_SERVICE_JWT_SECRET"), "HS256 secret (defaults to STAMPGATE_SERVICE_JWT_SECRET)")
	issuer := fs.String("issuer", os.Getenv("STAMPGATE_SERVICE_JWT_ISSUER"), "iss claim; must match the server when it checks one")
	subject := fs.String("subject", "issuer-service", "calling service name")
	scopes := fs.String("scopes", jwttoken.ScopeVerify, "comma-separated scopes")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token time-to-live")
	jsonOutput := fs.Bool("json", false, "output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `tokengen - generate a service token for the stampgate API

Usage:
  tokengen -secret <secret> [-subject name] [-scopes verify] [-ttl 15m] [-json]

Example:
  curl -H "Authorization: Bearer $(tokengen -secret s3cret)" \
       -d '{"type":"Facebook","proofs":{"accessToken":"..."}}' \
       http://localhost:8080/v1/verify`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "a signing secret is required (-secret or STAMPGATE_SERVICE_JWT_SECRET)")
		os.Exit(1)
	}

	scopeList := stringutil.SplitList(*scopes)
	token, err := jwttoken.NewJWTService(*secret, *issuer, *ttl).GenerateServiceToken(*subject, scopeList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if !*jsonOutput {
		fmt.Println(token)
		return
	}
	printJSON(tokenOutput{
		Token:     token,
		ExpiresIn: ttl.String(),
		Subject:   *subject,
		Scope:     scopeList,
		Usage: map[string]string{
			"header": "Authorization: Bearer <token>",
		},
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
