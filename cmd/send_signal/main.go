package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Sends a sample alert to a running bot. Handy for smoke-testing the
// webhook path without a charting platform in the loop.
func main() {
	url := flag.String("url", "http://localhost:8080/webhook", "webhook endpoint")
	symbol := flag.String("symbol", "BTCUSDT", "symbol")
	side := flag.String("side", "BUY", "BUY or SELL")
	price := flag.Float64("price", 50000, "signal price")
	pipe := flag.Bool("pipe", false, "send the pipe-delimited text form instead of JSON")
	flag.Parse()

	var payload string
	if *pipe {
		payload = fmt.Sprintf("SYMBOL=%s|SIGNAL=%s|PRICE_CLOSE=%f|WT_FLAG=true|WT_CROSS=UP|RSI_VALUE=30",
			*symbol, *side, *price)
	} else {
		payload = fmt.Sprintf(`{"symbol":%q,"signal":%q,"price":%f}`, *symbol, *side, *price)
	}

	resp, err := http.Post(*url, "application/json", bytes.NewBufferString(payload))
	if err != nil {
		fmt.Printf("❌ Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Body:   %s\n", string(body))
}
