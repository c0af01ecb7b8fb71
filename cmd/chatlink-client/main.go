package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/chatlink-app/chatlink/internal/roomview"
)

var (
	serverURL    string
	email        string
	password     string
	roomId       string
	roomPassword string
)

func main() {
	flag.StringVar(&serverURL, "server", "http://localhost:8000", "chat server base URL")
	flag.StringVar(&email, "email", "", "account email")
	flag.StringVar(&password, "password", "", "account password")
	flag.StringVar(&roomId, "room", "", "room id to join")
	flag.StringVar(&roomPassword, "room-password", "", "password for private rooms")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatlink-client] ", log.LstdFlags)

	if email == "" || password == "" || roomId == "" {
		logger.Fatal("email, password and room are required")
	}

	cookie, err := login(serverURL, email, password)
	if err != nil {
		logger.Fatal("login:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := roomview.Dial(ctx, logger, serverURL, cookie)
	if err != nil {
		logger.Fatal("connect:", err)
	}
	defer client.Close()

	if _, err := client.Join(ctx, roomId, roomPassword); err != nil {
		logger.Fatal("join:", err)
	}

	view := roomview.New(logger, client, client, client, client, client)
	defer view.Close()

	if err := view.Load(ctx, roomId); err != nil {
		logger.Fatal("load room:", err)
	}

	room := view.Room()
	fmt.Printf("== %s (%d members, you are %s) ==\n", room.Name, len(view.Members()), view.Role())

	for _, m := range view.Messages() {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Username, m.DisplayContent())
	}
	if err := view.MarkRead(ctx); err != nil {
		logger.Println("mark read:", err)
	}

	fmt.Println("-- connected, /older pages back, /members lists members, /quit exits --")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/older":
			if !view.HasMore() {
				fmt.Println("-- no more history --")
				continue
			}
			if err := view.LoadOlder(ctx); err != nil {
				logger.Println("load older:", err)
				continue
			}
			for _, m := range view.Messages() {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Username, m.DisplayContent())
			}
		case line == "/members":
			for _, m := range view.Members() {
				fmt.Printf("%s (%s)\n", m.Username, m.Role)
			}
		case line == "":
		default:
			if err := view.Send(ctx, line); err != nil {
				logger.Println("send:", err)
			}
		}
	}
}

// login authenticates against the HTTP API and returns the session cookie.
func login(baseURL, email, password string) (*http.Cookie, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no session cookie in login response")
}
