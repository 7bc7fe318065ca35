// Command dummyreceiver is a local webhook endpoint for trying orderhook out.
// It answers URL verification challenges and prints every order notification.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/otiai10/orderhook/internal/delivery/webhook"
)

const defaultSecret = "test-secret-key"

type receiver struct {
	secret string
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	secret := flag.String("secret", envOr("WEBHOOK_SECRET", defaultSecret), "Shared secret expected in notifications")
	flag.Parse()

	rcv := &receiver{secret: *secret}
	http.HandleFunc("/webhook", rcv.handleWebhook)

	log.Printf("Test webhook server starting on http://localhost%s/webhook", *addr)
	log.Println("Secret:", webhook.MaskSecret(*secret))
	log.Println("Waiting for order notifications...")
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (rcv *receiver) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if signature := r.Header.Get(webhook.SignatureHeader); signature != "" {
		if webhook.Verify(rcv.secret, body, signature) {
			log.Println("✓ Signature verified")
		} else {
			log.Println("⚠️  Invalid signature!")
		}
	}

	var challenge webhook.ChallengeRequest
	if err := json.Unmarshal(body, &challenge); err == nil && challenge.Type == webhook.ChallengeType {
		log.Println("Answering URL verification challenge")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(webhook.ChallengeResponse{Challenge: challenge.Challenge})
		return
	}

	var notification webhook.OrderNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if notification.Secret != rcv.secret {
		log.Printf("⚠️  Secret mismatch for order %d", notification.OrderID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	log.Printf("=== Order %d notified at %s (User-Agent: %s) ===",
		notification.OrderID, time.Now().Format("15:04:05"), r.UserAgent())

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
