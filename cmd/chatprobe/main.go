// Command main is an interactive probe for the messaging API. It drives the
// chatclient controller against a running server: list conversations, open
// one, send messages from stdin and print live events as they arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vetcare/internal/chatclient"
)

func main() {
	host := flag.String("host", "localhost:8460", "API server host")
	token := flag.String("token", "", "JWT bearer token for the probe user")
	userID := flag.Uint("user", 0, "Authenticated user ID (for local echo bookkeeping)")
	open := flag.Uint("open", 0, "Conversation ID to open on start (0 = first)")
	flag.Parse()

	if *token == "" || *userID == 0 {
		log.Fatal("both -token and -user are required")
	}

	api := chatclient.NewHTTPAPI(fmt.Sprintf("http://%s", *host), *token)
	link := chatclient.NewWSLink(fmt.Sprintf("ws://%s/api/ws/", *host), api)
	ctl := chatclient.NewController(api, link, *userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go func() {
		if err := ctl.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("link terminated: %v", err)
		}
	}()

	waitConnected(ctx, ctl)

	conversations := ctl.Conversations()
	if len(conversations) == 0 {
		log.Println("No conversations for this user. Seed some data first.")
		return
	}
	fmt.Println("Conversations:")
	for _, conv := range conversations {
		marker := " "
		if conv.UnreadCount > 0 {
			marker = fmt.Sprintf("*%d", conv.UnreadCount)
		}
		fmt.Printf("  [%d]%s %s\n", conv.ID, marker, conv.LastMessage)
	}

	target := *open
	if target == 0 {
		target = conversations[0].ID
	}
	if err := ctl.Open(ctx, target); err != nil {
		log.Fatalf("open conversation %d: %v", target, err)
	}
	fmt.Printf("-- conversation %d --\n", target)
	for _, msg := range ctl.Messages(target) {
		fmt.Printf("  %s #%d: %s\n", msg.CreatedAt.Format("15:04"), msg.SenderID, msg.Content)
	}
	fmt.Println("Type a message and press enter. /quit to exit.")

	go watchTyping(ctx, ctl, target)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		default:
			ctl.InputTyping()
			if _, err := ctl.Send(ctx, line, nil); err != nil {
				log.Printf("send failed: %v", err)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func waitConnected(ctx context.Context, ctl *chatclient.Controller) {
	deadline := time.After(10 * time.Second)
	for {
		if err := ctl.Refresh(ctx); err == nil && ctl.LinkState() == chatclient.LinkConnected {
			return
		}
		select {
		case <-ctx.Done():
			os.Exit(0)
		case <-deadline:
			log.Fatal("could not reach the server within 10s")
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// watchTyping polls the controller and prints indicator changes for the
// open conversation.
func watchTyping(ctx context.Context, ctl *chatclient.Controller, conversationID uint) {
	var last string
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := strings.Join(ctl.TypingUsers(conversationID), ", ")
			if current != last {
				if current != "" {
					fmt.Printf("  (%s is typing...)\n", current)
				}
				last = current
			}
		}
	}
}
