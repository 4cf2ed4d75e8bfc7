package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	roundFlag = &cli.Uint64Flag{
		Name:     "round",
		Usage:    "round id",
		Required: true,
	}
	rewardEpochFlag = &cli.Uint64Flag{
		Name:  "reward-epoch",
		Usage: "reward epoch id",
	}
	beneficiaryFlag = &cli.StringFlag{
		Name:  "beneficiary",
		Usage: "only list the claims of this address",
	}
	resultsFlag = &cli.BoolFlag{
		Name:  "results",
		Usage: "show the feed results instead of the round state",
	}
)

var (
	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Get info about the current round and watermarks of the node",
		Action: statusAction,
	}
	roundCmd = &cli.Command{
		Name:   "round",
		Usage:  "Get the state or the feed results of a round",
		Action: roundAction,
		Flags:  []cli.Flag{roundFlag, resultsFlag},
	}
	claimsCmd = &cli.Command{
		Name:   "claims",
		Usage:  "List the reward claims of a reward epoch with their merkle proofs",
		Action: claimsAction,
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "reward-epoch", Usage: "reward epoch id", Required: true},
			beneficiaryFlag,
		},
	}
	finalizationCmd = &cli.Command{
		Name:   "finalization",
		Usage:  "Get the on-chain finalization of a round or a reward epoch",
		Action: finalizationAction,
		Flags:  []cli.Flag{&cli.Uint64Flag{Name: "round", Usage: "round id"}, rewardEpochFlag},
	}
)

func statusAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/status", ctx.String("url"))
	return printJSON(url)
}

func roundAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/rounds/%d", ctx.String("url"), ctx.Uint64("round"))
	if ctx.Bool("results") {
		url += "/results"
	}
	return printJSON(url)
}

func claimsAction(ctx *cli.Context) error {
	url := fmt.Sprintf(
		"%s/v1/reward-epochs/%d/claims", ctx.String("url"), ctx.Uint64("reward-epoch"),
	)
	if beneficiary := ctx.String("beneficiary"); len(beneficiary) > 0 {
		url = fmt.Sprintf("%s?beneficiary=%s", url, beneficiary)
	}
	return printJSON(url)
}

func finalizationAction(ctx *cli.Context) error {
	hasRound, hasEpoch := ctx.IsSet("round"), ctx.IsSet("reward-epoch")
	if hasRound == hasEpoch {
		return fmt.Errorf("exactly one of --round or --reward-epoch must be set")
	}

	url := fmt.Sprintf("%s/v1/rounds/%d/finalization", ctx.String("url"), ctx.Uint64("round"))
	if hasEpoch {
		url = fmt.Sprintf(
			"%s/v1/reward-epochs/%d/finalization", ctx.String("url"), ctx.Uint64("reward-epoch"),
		)
	}
	return printJSON(url)
}

func printJSON(url string) error {
	res, err := get[json.RawMessage](url)
	if err != nil {
		return err
	}
	buf, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func get[T any](url string) (result T, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		errResp := struct {
			Error string `json:"error"`
		}{}
		if json.Unmarshal(buf, &errResp) == nil && len(errResp.Error) > 0 {
			err = fmt.Errorf("failed to get: %s", errResp.Error)
			return
		}
		err = fmt.Errorf("failed to get: %s", string(buf))
		return
	}

	err = json.Unmarshal(buf, &result)
	return
}
