// Load generator for a running parley instance. It drives the blocking
// generate endpoint against a session that must already exist, so point
// it at a deployment whose provider is a mock or a local Ollama.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

func main() {
	base := flag.String("url", "http://localhost:8080", "Base URL of the server")
	token := flag.String("token", "", "Bearer token")
	team := flag.String("team", "", "Team ID")
	session := flag.String("session", "", "Session ID to generate against")
	rate := flag.Int("rate", 25, "Requests per second")
	duration := flag.Duration("duration", 10*time.Second, "Attack duration")
	stream := flag.Bool("stream", false, "Request SSE streaming")
	flag.Parse()

	if *token == "" || *team == "" || *session == "" {
		fmt.Println("usage: benchmark -token <token> -team <team-id> -session <session-id>")
		return
	}

	body := `{"query": "benchmark ping"}`
	if *stream {
		body = `{"query": "benchmark ping", "stream": true}`
	}

	targeter := func(t *vegeta.Target) error {
		t.Method = http.MethodPost
		t.URL = fmt.Sprintf("%s/v1/sessions/%s/generate", *base, *session)
		t.Body = []byte(body)
		t.Header = http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + *token},
			"X-Team-ID":     []string{*team},
		}
		return nil
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "generate") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Errors (first 5):")
		for i, msg := range metrics.Errors {
			if i == 5 {
				break
			}
			fmt.Println(" ", msg)
		}
	}
}
