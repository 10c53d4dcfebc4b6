package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentSwap-Chain/sdk/go/agentswap"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(agentswap.TradeRecord{
				ID:     "trade-demo",
				Intent: "buy ETH if sentiment is bullish",
				Status: "pending",
			})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(agentswap.TradeRecord{
				ID:     "trade-demo",
				Status: "succeeded",
				Outcome: &agentswap.TradeOutcome{
					Kind:   "executed",
					Symbol: "ETH",
					Action: "buy",
					Amount: "0.072",
					TxHash: "0x3b1f6a4f6f2f2f7f8d9e0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f",
				},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentswap.DaemonStatus{
			SignerAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			LastNonce:     3,
			DefaultChain:  "sepolia",
			Chains:        []string{"sepolia"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agentswap.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("daemon signing as %s (last nonce %d)\n", status.SignerAddress, status.LastNonce)

	record, err := client.SubmitTrade(ctx, agentswap.TradeSubmission{Intent: "buy ETH if sentiment is bullish"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted trade %s (status=%s)\n", record.ID, record.Status)

	final, err := client.WaitForTrade(ctx, record.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("trade %s finished: %s %s %s tx=%s\n",
		final.ID, final.Outcome.Action, final.Outcome.Amount, final.Outcome.Symbol, final.Outcome.TxHash)
}
