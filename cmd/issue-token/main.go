// Command issue-token mints an operator access token signed with JWT_SECRET.
//
//	issue-token -sub ops-1 -role operator
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"auditchain/internal/auth"
	"auditchain/internal/config"
	"auditchain/internal/rbac"
)

func main() {
	sub := flag.String("sub", "", "operator id (token subject)")
	role := flag.String("role", rbac.RoleOperator, "role: operator, auditor, viewer or admin")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := run(*envFile, *sub, *role); err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
}

func run(envFile, sub, role string) error {
	if !rbac.Known(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}
	tok, err := m.IssueAccess(time.Now(), sub, role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
