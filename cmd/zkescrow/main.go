package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/api/clients"
	"github.com/ruteri/sui-escrow-gateway/cmd/flags"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/urfave/cli/v2"
)

var flagProvider = &cli.StringFlag{
	Name:  "provider",
	Value: "google",
	Usage: "OAuth provider: google, facebook or apple",
}
var flagMaxEpoch = &cli.Uint64Flag{
	Name:  "max-epoch",
	Usage: "last epoch the session is valid in. The gateway picks one when unset",
}
var flagIDToken = &cli.StringFlag{
	Name:  "id-token",
	Usage: "provider credential. Read from stdin when unset",
}
var flagEscrowID = &cli.StringFlag{
	Name:     "escrow",
	Required: true,
	Usage:    "escrow object id",
}
var flagAddress = &cli.StringFlag{
	Name:  "address",
	Usage: "account address. Defaults to the session address",
}

func main() {
	app := &cli.App{
		Name:  "zkescrow",
		Usage: "Sign in with zkLogin and manage supply chain escrows through a gateway",
		Flags: []cli.Flag{
			flags.GatewayAddrFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "start a zkLogin flow and complete it with the provider credential",
				Flags: []cli.Flag{flagProvider, flagMaxEpoch, flagIDToken},
				Action: func(cCtx *cli.Context) error {
					c := newClient(cCtx)
					provider, err := interfaces.ParseProvider(cCtx.String(flagProvider.Name))
					if err != nil {
						return err
					}
					begin, err := c.BeginAuth(cCtx.Context, provider, cCtx.Uint64(flagMaxEpoch.Name))
					if err != nil {
						return fmt.Errorf("could not begin login: %w", err)
					}

					token := cCtx.String(flagIDToken.Name)
					if token == "" {
						fmt.Fprintf(os.Stderr, "Open this URL and sign in:\n\n  %s\n\nPaste the id_token from the redirect: ", begin.AuthURL)
						line, err := bufio.NewReader(os.Stdin).ReadString('\n')
						if err != nil {
							_ = c.AbandonAuth(cCtx.Context, begin.FlowID)
							return fmt.Errorf("could not read credential: %w", err)
						}
						token = strings.TrimSpace(line)
					}

					summary, err := c.CompleteAuth(cCtx.Context, token, begin.State)
					if err != nil {
						return fmt.Errorf("login failed: %w", err)
					}
					return printJSON(summary)
				},
			},
			{
				Name:  "session",
				Usage: "show the active session",
				Action: func(cCtx *cli.Context) error {
					summary, err := newClient(cCtx).Session(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(summary)
				},
			},
			{
				Name:  "logout",
				Usage: "remove the session and its key material",
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).Logout(cCtx.Context)
				},
			},
			{
				Name:  "faucet",
				Usage: "request test gas for the session address",
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).RequestGas(cCtx.Context)
				},
			},
			{
				Name:  "balance",
				Usage: "show the SUI balance",
				Flags: []cli.Flag{flagAddress},
				Action: func(cCtx *cli.Context) error {
					c := newClient(cCtx)
					addr, err := resolveAddress(cCtx, c)
					if err != nil {
						return err
					}
					bal, err := c.Balance(cCtx.Context, addr)
					if err != nil {
						return err
					}
					fmt.Printf("%s SUI (%d coins)\n", escrow.FormatSui(bal.TotalBalance), bal.CoinObjectCount)
					return nil
				},
			},
			{
				Name:  "register",
				Usage: "create the user account of the session",
				Action: func(cCtx *cli.Context) error {
					return printCall(newClient(cCtx).CreateAccount(cCtx.Context))
				},
			},
			{
				Name:  "list-product",
				Usage: "list a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "category"},
					&cli.Uint64Flag{Name: "quantity", Value: 1},
					&cli.StringFlag{Name: "unit-price", Required: true, Usage: "price in SUI"},
					&cli.StringFlag{Name: "manufacturer"},
					&cli.StringFlag{Name: "origin"},
					&cli.StringFlag{Name: "batch"},
					&cli.StringFlag{Name: "image", Usage: "image file to pin"},
				},
				Action: func(cCtx *cli.Context) error {
					c := newClient(cCtx)
					price, err := escrow.ParseSui(cCtx.String("unit-price"))
					if err != nil {
						return err
					}
					in := escrow.ProductInput{
						Name:           cCtx.String("name"),
						Description:    cCtx.String("description"),
						Category:       cCtx.String("category"),
						Quantity:       cCtx.Uint64("quantity"),
						UnitPrice:      price,
						Currency:       "SUI",
						Manufacturer:   cCtx.String("manufacturer"),
						OriginLocation: cCtx.String("origin"),
						BatchNumber:    cCtx.String("batch"),
					}
					if path := cCtx.String("image"); path != "" {
						data, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						pin, err := c.PinFile(cCtx.Context, filepath.Base(path), data)
						if err != nil {
							return fmt.Errorf("could not pin image: %w", err)
						}
						in.ImageIPFS = string(pin.CID)
					}
					return printCall(c.CreateProduct(cCtx.Context, in))
				},
			},
			{
				Name:  "open",
				Usage: "open an escrow paying for a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "seller", Required: true},
					&cli.StringFlag{Name: "arbiter", Required: true},
					&cli.StringFlag{Name: "product", Required: true},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "amount in SUI"},
					&cli.StringFlag{Name: "terms"},
				},
				Action: func(cCtx *cli.Context) error {
					in := escrow.EscrowInput{Terms: cCtx.String("terms")}
					var err error
					if in.Seller, err = interfaces.ParseAddress(cCtx.String("seller")); err != nil {
						return err
					}
					if in.Arbiter, err = interfaces.ParseAddress(cCtx.String("arbiter")); err != nil {
						return err
					}
					if in.ProductID, err = interfaces.ParseAddress(cCtx.String("product")); err != nil {
						return err
					}
					if in.Amount, err = escrow.ParseSui(cCtx.String("amount")); err != nil {
						return err
					}
					return printCall(newClient(cCtx).CreateEscrow(cCtx.Context, in))
				},
			},
			escrowCommand("accept", "accept an escrow as the seller"),
			escrowCommand("complete", "release the funds to the seller as the buyer"),
			escrowCommand("dispute", "raise a dispute"),
			escrowCommand("cancel", "cancel an escrow that was not shipped"),
			{
				Name:  "track",
				Usage: "add a shipment checkpoint",
				Flags: []cli.Flag{
					flagEscrowID,
					&cli.StringFlag{Name: "location", Required: true},
					&cli.StringFlag{Name: "status", Value: "in_transit", Usage: "checkpoint status, \"delivered\" marks delivery"},
				},
				Action: func(cCtx *cli.Context) error {
					id, err := interfaces.ParseAddress(cCtx.String(flagEscrowID.Name))
					if err != nil {
						return err
					}
					return printCall(newClient(cCtx).UpdateTracking(cCtx.Context, id, cCtx.String("location"), cCtx.String("status")))
				},
			},
			{
				Name:  "escrows",
				Usage: "list escrows the address is buyer or seller of",
				Flags: []cli.Flag{flagAddress},
				Action: func(cCtx *cli.Context) error {
					c := newClient(cCtx)
					addr, err := resolveAddress(cCtx, c)
					if err != nil {
						return err
					}
					list, err := c.Escrows(cCtx.Context, addr)
					if err != nil {
						return err
					}
					for _, e := range list {
						fmt.Printf("%s  %-10s  %s SUI  seller %s\n", e.ID, e.State, escrow.FormatSui(e.Amount), escrow.FormatAddress(e.Seller.String(), 4))
					}
					return nil
				},
			},
			{
				Name:  "history",
				Usage: "list the transactions submitted by the session",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: func(cCtx *cli.Context) error {
					txs, err := newClient(cCtx).Transactions(cCtx.Context, cCtx.Int("limit"))
					if err != nil {
						return err
					}
					return printJSON(txs)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if digest, ok := clients.IsRejected(err); ok {
			log.Fatalf("%v\ntransaction %s was executed and aborted", err, digest)
		}
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.GatewayClient {
	return clients.NewGatewayClient(cCtx.String(flags.GatewayAddrFlag.Name))
}

func escrowCommand(action, usage string) *cli.Command {
	return &cli.Command{
		Name:  action,
		Usage: usage,
		Flags: []cli.Flag{flagEscrowID},
		Action: func(cCtx *cli.Context) error {
			id, err := interfaces.ParseAddress(cCtx.String(flagEscrowID.Name))
			if err != nil {
				return err
			}
			return printCall(newClient(cCtx).EscrowAction(cCtx.Context, id, action))
		},
	}
}

func resolveAddress(cCtx *cli.Context, c *clients.GatewayClient) (interfaces.Address, error) {
	if raw := cCtx.String(flagAddress.Name); raw != "" {
		return interfaces.ParseAddress(raw)
	}
	summary, err := c.Session(cCtx.Context)
	if err != nil {
		return interfaces.Address{}, fmt.Errorf("no --address and no session: %w", err)
	}
	return interfaces.ParseAddress(summary.Address)
}

func printCall(res *clients.CallResult, err error) error {
	if err != nil {
		return err
	}
	return printJSON(res)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
