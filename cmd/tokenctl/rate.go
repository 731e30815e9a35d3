package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"tokencore/internal/core/oracle"
	"tokencore/internal/platform/config"
	redisclient "tokencore/internal/platform/redis"
)

var (
	redisFlag = &cli.StringFlag{
		Name:     "redis-url",
		EnvVars:  []string{"REDIS_URL"},
		Required: true,
	}
	decimalsFlag = &cli.UintFlag{
		Name:  "decimals",
		Usage: "fixed-point decimals of the rate value",
	}
)

var SetRate = cli.Command{
	Action:    setRate,
	Name:      "set-rate",
	Usage:     "publishes an exchange rate to the redis rate source",
	ArgsUsage: "<currency> <reference index> <value>",
	Flags:     []cli.Flag{redisFlag, decimalsFlag},
}

func setRate(context *cli.Context) error {
	if context.Args().Len() != 3 {
		return fmt.Errorf("expected <currency> <reference index> <value>")
	}
	currency := context.Args().Get(0)
	index, err := strconv.ParseUint(context.Args().Get(1), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid reference index: %w", err)
	}
	value, err := uint256.FromDecimal(context.Args().Get(2))
	if err != nil {
		return fmt.Errorf("invalid rate value: %w", err)
	}
	decimals := context.Uint(decimalsFlag.Name)
	if decimals > 77 {
		return fmt.Errorf("decimals must be at most 77")
	}

	cfg := config.FromEnv().Redis
	cfg.URL = context.String(redisFlag.Name)
	client, err := redisclient.New(context.Context, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	rate := oracle.Rate{Value: *value, Decimals: uint8(decimals), UpdatedAt: time.Now().UTC()}
	if err := oracle.NewRedisRateSource(client).Put(context.Context, currency, uint32(index), rate); err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "%s/%d = %s\n", currency, index, oracle.FormatRate(rate))
	return nil
}
