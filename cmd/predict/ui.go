package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func renderMarkets(payload map[string]any) {
	markets, _ := payload["markets"].([]any)
	if len(markets) == 0 {
		printInfo("no active markets")
		return
	}
	for _, raw := range markets {
		m, _ := raw.(map[string]any)
		accent.Printf("%v", m["name"])
		neutral.Printf("  %v  (closes %v)\n", m["question"], m["when_closes"])
	}
}

func renderBoard(payload map[string]any) {
	accent.Printf("%v\n", payload["question"])
	status := fmt.Sprintf("%v", payload["status"])
	if closed, _ := payload["closed"].(bool); closed && status == "open" {
		status = "open (trading locked)"
	}
	neutral.Printf("status: %s, closes %v\n", status, payload["when_closes"])
	outcomes, _ := payload["outcomes"].([]any)
	for _, raw := range outcomes {
		o, _ := raw.(map[string]any)
		neutral.Printf("  %v: %.2f%%", o["symbol"], num(o["price"])*100)
		if shares := num(o["shares"]); shares > 0 {
			success.Printf("  (you hold %.2f)", shares)
		}
		fmt.Println()
	}
}

func renderLeaderboard(payload map[string]any) {
	accent.Printf("cycle %v (median bets: %d)\n", payload["cycle_key"], int(num(payload["median_bets"])))
	entries, _ := payload["entries"].([]any)
	if len(entries) == 0 {
		printInfo("no accounts yet this cycle")
		return
	}
	for _, raw := range entries {
		e, _ := raw.(map[string]any)
		mark := ""
		if eligible, _ := e["eligible"].(bool); eligible {
			mark = " *"
		}
		neutral.Printf("%2d. %-20v %10.2f (%d bets)%s\n",
			int(num(e["rank"])), e["user_id"], num(e["balance"]), int(num(e["bet_count"])), mark)
	}
}
