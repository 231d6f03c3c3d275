// Package main provides a CLI tool for generating test tokens for the
// ChantierPro gateway. These tokens use the dev signing key and will NOT work
// in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	jwttoken "github.com/khaleddesign/chantierpro-sub001/internal/jwt_token"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	// Defaults matching config.go
	defaultIssuer   = "chantierpro-auth"
	defaultAudience = "chantierpro-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	accessCmd := flag.NewFlagSet("access", flag.ExitOnError)
	userID := accessCmd.String("user-id", "", "User ID. Generated if empty.")
	role := accessCmd.String("role", "artisan", "User role")
	signingKey := accessCmd.String("key", devSigningKey, "HS256 signing key")
	issuer := accessCmd.String("issuer", defaultIssuer, "Token issuer")
	audience := accessCmd.String("audience", defaultAudience, "Token audience")
	ttl := accessCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOut := accessCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "access":
		_ = accessCmd.Parse(os.Args[2:])
		uid := *userID
		if uid == "" {
			uid = uuid.NewString()
		}
		svc := jwttoken.NewJWTService(*signingKey, *issuer, *audience, *ttl)
		generateAccessToken(svc, uid, *role, *ttl, *jsonOut)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the ChantierPro gateway

WARNING: These tokens use the dev signing key and will NOT work in production.

Usage:
  tokengen access [flags]

Examples:
  tokengen access
  tokengen access -user-id user-42 -role admin -ttl 1h
  tokengen access -json`)
}

func generateAccessToken(svc *jwttoken.JWTService, userID, role string, ttl time.Duration, jsonOutput bool) {
	token, err := svc.GenerateAccessToken(userID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "access_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"user_id": userID,
				"role":    role,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("User ID:     %s\n", userID)
	fmt.Printf("Role:        %s\n", role)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/api/...")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
