// Command replay streams a WAV recording into a running detector server in
// real time and prints the live event feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"nhooyr.io/websocket"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/feed"
	"serveturn/detector/internal/health"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "http://localhost:8080", "Detector HTTP base URL")
	grpcAddr := flag.String("grpc", "localhost:9090", "Detector gRPC health address")
	file := flag.String("file", "", "WAV file to stream")
	rate := flag.Int("rate", 16000, "Sample rate the server expects")
	speed := flag.Float64("speed", 1.0, "Playback speed multiplier")
	tail := flag.Duration("tail", 2*time.Second, "How long to keep listening after the audio ends")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	if *file == "" {
		log.Fatalf("-file is required")
	}
	if *speed <= 0 {
		log.Fatalf("-speed must be positive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	samples, err := audio.LoadWAV(*file, *rate)
	if err != nil {
		log.Fatalf("load audio: %v", err)
	}

	fmt.Printf("=== Replay ===\n")
	fmt.Printf("File: %s (%.1fs)\n\n", *file, float64(len(samples))/float64(*rate))

	fmt.Println("[1] Probing gRPC health...")
	st, err := health.Probe(ctx, *grpcAddr, health.Service)
	if err != nil {
		log.Fatalf("health probe: %v", err)
	}
	fmt.Printf("    %s\n", st)
	if ready, err := readiness(ctx, *server+"/readyz"); err == nil {
		fmt.Print(indent(ready.String()))
	}

	fmt.Println("[2] Starting session...")
	var started struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := postJSON(ctx, *server+"/api/start", &started); err != nil {
		log.Fatalf("start: %v", err)
	}
	if started.Message != "" {
		fmt.Printf("    %s\n", started.Message)
	}
	fmt.Printf("    session %s\n", started.SessionID)

	var token string
	var minted struct {
		Token string `json:"token"`
	}
	if err := postJSON(ctx, *server+"/api/sessions/"+started.SessionID+"/token", &minted); err == nil {
		token = minted.Token
		fmt.Println("[3] Ingest token minted")
	} else {
		fmt.Printf("[3] No ingest token (%v)\n", err)
	}

	wsBase := strings.Replace(*server, "http", "ws", 1)
	events, _, err := websocket.Dial(ctx, wsBase+"/ws/events", nil)
	if err != nil {
		log.Fatalf("dial events: %v", err)
	}
	defer events.Close(websocket.StatusNormalClosure, "done")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := events.Read(ctx)
			if err != nil {
				return
			}
			printMessage(data)
		}
	}()

	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	audioURL := wsBase + "/ws/audio?session_id=" + url.QueryEscape(started.SessionID)
	capture, _, err := websocket.Dial(ctx, audioURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		log.Fatalf("dial audio: %v", err)
	}

	fmt.Println("[4] Streaming audio...")
	chunk := *rate / 10
	interval := time.Duration(float64(100*time.Millisecond) / *speed)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < len(samples); i += chunk {
		end := i + chunk
		if end > len(samples) {
			end = len(samples)
		}
		if err := capture.Write(ctx, websocket.MessageBinary, audio.EncodePCM16(samples[i:end])); err != nil {
			log.Fatalf("send audio: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			fmt.Println("[*] Interrupted")
			i = len(samples)
		}
	}
	capture.Close(websocket.StatusNormalClosure, "eof")

	select {
	case <-time.After(*tail):
	case <-ctx.Done():
	}

	fmt.Println("[5] Stopping session...")
	var stopped map[string]any
	if err := postJSON(context.Background(), *server+"/api/stop", &stopped); err != nil {
		log.Fatalf("stop: %v", err)
	}
	out, _ := json.MarshalIndent(stopped, "", "  ")
	fmt.Println(string(out))

	events.Close(websocket.StatusNormalClosure, "done")
	<-done
}

func postJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printMessage(data []byte) {
	ts := time.Now().Format("15:04:05.000")
	var msg feed.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Printf("[%s] <- %s\n", ts, data)
		return
	}
	switch msg.Type {
	case "status":
		// one per heartbeat; too noisy to print
	case "moment":
		fmt.Printf("[%s] <- MOMENT %s\n", ts, compact(msg.Data))
	default:
		fmt.Printf("[%s] <- %s %s\n", ts, msg.Type, compact(msg.Data))
	}
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func readiness(ctx context.Context, u string) (health.HealthStatus, error) {
	var st health.HealthStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return "    " + strings.Join(lines, "\n    ") + "\n"
}
