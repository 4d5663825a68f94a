package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/config"
	"github.com/ivankudzin/forummod/internal/services/auth"
)

// devtoken mints an access token signed with the configured JWT secret, for calling the
// admin API from a shell during local development.
func main() {
	userID := flag.String("user", "", "reviewer id placed in the token subject")
	role := flag.String("role", "moderator", "reviewer role")
	sid := flag.String("sid", "", "session id; random when empty")
	ttl := flag.Duration("ttl", 0, "token lifetime; auth.jwt_access_ttl when zero")
	flag.Parse()

	if strings.TrimSpace(*userID) == "" {
		log.Fatal("use -user to pass reviewer id")
	}

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("refusing to mint tokens for a production config")
	}

	lifetime := cfg.Auth.JWTAccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	session := strings.TrimSpace(*sid)
	if session == "" {
		session = uuid.NewString()
	}

	token, expiresAt, err := auth.NewJWTManager(cfg.Auth.JWTSecret, lifetime).GenerateAccessToken(*userID, session, *role)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
}
