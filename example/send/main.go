// Submits one message through the relay. The SMTP password is a provider
// API token; its shape picks the provider (mlsn. prefix routes to
// MailerSend here).
package main

import (
	"fmt"
	"net/smtp"
	"os"
)

func main() {
	addr := envOr("RELAY_ADDR", "127.0.0.1:2525")
	login := envOr("RELAY_LOGIN", "alice@example.com")
	apiToken := envOr("RELAY_TOKEN", "mlsn.replace-with-a-real-token")

	from := "a@x.com"
	to := "b@y.com"
	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Hi\r\n\r\nHello from mailbridge.\r\n", from, to)

	auth := smtp.PlainAuth("", login, apiToken, "127.0.0.1")
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		fmt.Fprintln(os.Stderr, "send failed:", err)
		os.Exit(1)
	}
	fmt.Println("message accepted by relay")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
