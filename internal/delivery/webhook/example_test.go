package webhook_test

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/orderhook/internal/config"
	"github.com/otiai10/orderhook/internal/delivery/webhook"
)

// Example_singleEndpoint demonstrates delivering one notification
func Example_singleEndpoint() {
	sender := webhook.NewSender()

	payload := webhook.NewOrderNotification(1001, "your-secret-key")
	out := sender.Deliver(context.Background(), "https://shop.example.com/hooks/orders",
		payload, 30*time.Second, webhook.DeliveryContext{OrderID: 1001, Index: 1})

	if out.Success {
		fmt.Printf("Delivered in %v\n", out.ResponseTime)
	} else {
		fmt.Printf("Delivery failed: status=%d error=%s\n", out.StatusCode, out.Error)
	}
}

// Example_dispatch demonstrates fanning an order out to every configured endpoint
func Example_dispatch() {
	settings := config.NewStaticStore(map[string]string{
		"webhook.url1":    "https://erp.example.com/orders",
		"webhook.url2":    "https://crm.example.com/hooks",
		"webhook.timeout": "10",
		"webhook.secret":  "your-secret-key",
	})

	coordinator := webhook.NewCoordinator(config.NewReader(settings), webhook.NewSender())
	if coordinator.Dispatch(context.Background(), 1001) {
		fmt.Println("All endpoints accepted the notification")
	}
}

func ExampleNewOrderNotification() {
	body, _ := webhook.NewOrderNotification(42, "").Encode()
	fmt.Println(string(body))
	// Output: {"order_id":42,"secret":""}
}

func ExampleSign() {
	body := []byte(`{"order_id":42,"secret":"s"}`)
	signature := webhook.Sign("s", body)
	fmt.Println(webhook.Verify("s", body, signature))
	// Output: true
}
