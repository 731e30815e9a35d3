package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	jwttoken "tokencore/internal/jwt_token"
	id "tokencore/pkg/domain"
	"tokencore/pkg/requestcontext"
)

var (
	signingKeyFlag = &cli.StringFlag{
		Name:     "signing-key",
		Usage:    "HMAC key shared with the server",
		EnvVars:  []string{"JWT_SIGNING_KEY"},
		Required: true,
	}
	issuerFlag = &cli.StringFlag{
		Name:    "issuer",
		Value:   "tokencore",
		EnvVars: []string{"JWT_ISSUER"},
	}
	audienceFlag = &cli.StringFlag{
		Name:    "audience",
		Value:   "tokencore-api",
		EnvVars: []string{"JWT_AUDIENCE"},
	}
	roleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "operator or proxy",
		Value: string(requestcontext.RoleOperator),
	}
	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Value: time.Hour,
		Usage: "token lifetime",
	}
)

var Token = cli.Command{
	Action:    issueToken,
	Name:      "token",
	Usage:     "issues a bearer token for a caller address",
	ArgsUsage: "<caller address>",
	Flags:     []cli.Flag{signingKeyFlag, issuerFlag, audienceFlag, roleFlag, ttlFlag},
}

func issueToken(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing caller address")
	}
	caller, err := id.ParseAddress(context.Args().Get(0))
	if err != nil {
		return err
	}
	if id.IsNullAddress(caller) {
		return fmt.Errorf("caller cannot be the null address")
	}
	role := requestcontext.Role(context.String(roleFlag.Name))
	if !role.IsValid() {
		return fmt.Errorf("unknown role %q", role)
	}
	ttl := context.Duration(ttlFlag.Name)
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	svc := jwttoken.NewJWTService(
		context.String(signingKeyFlag.Name),
		context.String(issuerFlag.Name),
		context.String(audienceFlag.Name),
	)
	token, err := svc.GenerateAccessToken(caller, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(context.App.Writer, token)
	return nil
}
