package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/restapi"
	"github.com/anydex/anydex/pkg/crypto"
)

func main() {
	var (
		privateKeyHex = flag.String("key", "", "hex-encoded private key (generates a new one if empty)")
		isAsk         = flag.Bool("ask", true, "true for an ask, false for a bid")
		firstAsset    = flag.String("first-asset", "BTC", "asset the order gives up (ask) or wants (bid)")
		firstAmount   = flag.Int64("first-amount", 0, "quantity of first-asset")
		secondAsset   = flag.String("second-asset", "USD", "asset the order wants (ask) or gives up (bid)")
		secondAmount  = flag.Int64("second-amount", 0, "quantity of second-asset")
		timeoutSec    = flag.Int64("timeout", 3600, "order timeout in seconds")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *privateKeyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(strings.TrimPrefix(*privateKeyHex, "0x"))
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	traderID := market.TraderIDFromAddress(signer.Address())
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Trader ID: %s\n", traderID.String())
	if *privateKeyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())
	}

	req := restapi.OrderRequest{
		Trader:       traderID.String(),
		IsAsk:        *isAsk,
		FirstAsset:   *firstAsset,
		FirstAmount:  *firstAmount,
		SecondAsset:  *secondAsset,
		SecondAmount: *secondAmount,
		TimeoutSec:   *timeoutSec,
	}

	fmt.Println("Order Details:")
	side := "ask"
	if !req.IsAsk {
		side = "bid"
	}
	fmt.Printf("  Side: %s\n", side)
	fmt.Printf("  First: %d %s\n", req.FirstAmount, req.FirstAsset)
	fmt.Printf("  Second: %d %s\n", req.SecondAmount, req.SecondAsset)
	fmt.Printf("  Timeout: %ds\n\n", req.TimeoutSec)

	if err := req.Sign(signer); err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: %s\n\n", req.Signature)

	if err := req.VerifySignature(); err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signature VALID")

	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSigned order request (JSON):")
	fmt.Println(string(body))
	fmt.Println()
	fmt.Println("To submit this order to AnyDex:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
}
