// counsel-cli is a small terminal client for the counsel server. It keeps
// one conversation active at a time and mirrors the sign-in transition:
// anonymous usage talks to the server's local tier, a signed-in session to
// the remote store.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	promptColor    = color.New(color.FgCyan, color.Bold)
	userColor      = color.New(color.FgGreen)
	assistantColor = color.New(color.FgWhite)
	infoColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

type session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedTs int64  `json:"updatedTs"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sendResult struct {
	UserMessage      *message `json:"userMessage"`
	AssistantMessage *message `json:"assistantMessage"`
}

type client struct {
	baseURL string
	token   string
	http    *http.Client

	sessions []session
	active   string
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("server answered %s", resp.Status)
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *client) refreshSessions() error {
	return c.do(http.MethodGet, "/api/v1/sessions", nil, &c.sessions)
}

func (c *client) printSessions() {
	if len(c.sessions) == 0 {
		infoColor.Println("no conversations yet, /new starts one")
		return
	}
	for i, s := range c.sessions {
		marker := " "
		if s.ID == c.active {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s\n", marker, i+1, s.Title)
	}
}

func (c *client) printHistory() {
	var messages []message
	if err := c.do(http.MethodGet, "/api/v1/sessions/"+c.active+"/messages", nil, &messages); err != nil {
		errorColor.Println(err)
		return
	}
	for _, m := range messages {
		printTurn(m)
	}
}

func printTurn(m message) {
	if m.Role == "user" {
		userColor.Printf("you> %s\n", m.Content)
		return
	}
	assistantColor.Printf("counselor> %s\n", m.Content)
}

func (c *client) signIn(email, password string) {
	var resp struct {
		Token string `json:"token"`
		User  struct {
			Nickname string `json:"nickname"`
		} `json:"user"`
	}
	err := c.do(http.MethodPost, "/api/v1/auth/signin",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		errorColor.Println(err)
		return
	}
	c.token = resp.Token
	c.active = ""
	infoColor.Printf("signed in as %s, now on the remote store\n", resp.User.Nickname)
	if err := c.refreshSessions(); err != nil {
		errorColor.Println(err)
	}
	c.printSessions()
}

func (c *client) signOut() {
	if c.token == "" {
		infoColor.Println("not signed in")
		return
	}
	if err := c.do(http.MethodPost, "/api/v1/auth/signout", nil, nil); err != nil {
		errorColor.Println(err)
	}
	c.token = ""
	c.active = ""
	infoColor.Println("signed out, back on local history")
	if err := c.refreshSessions(); err != nil {
		errorColor.Println(err)
	}
	c.printSessions()
}

func (c *client) send(content string) {
	if c.active == "" {
		var created session
		if err := c.do(http.MethodPost, "/api/v1/sessions", map[string]string{}, &created); err != nil {
			errorColor.Println(err)
			return
		}
		c.active = created.ID
	}

	var result sendResult
	err := c.do(http.MethodPost, "/api/v1/sessions/"+c.active+"/messages",
		map[string]string{"content": content}, &result)
	if err != nil {
		errorColor.Println(err)
		return
	}
	printTurn(*result.AssistantMessage)
}

func (c *client) handleCommand(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return false
	case "/help":
		infoColor.Println("/new [title], /list, /switch N, /delete N, /login EMAIL PASSWORD, /signup EMAIL PASSWORD, /logout, /migrate, /quit")
	case "/new":
		title := strings.TrimSpace(strings.TrimPrefix(line, "/new"))
		var created session
		if err := c.do(http.MethodPost, "/api/v1/sessions", map[string]string{"title": title}, &created); err != nil {
			errorColor.Println(err)
			break
		}
		c.active = created.ID
		infoColor.Printf("started %q\n", created.Title)
	case "/list":
		if err := c.refreshSessions(); err != nil {
			errorColor.Println(err)
			break
		}
		c.printSessions()
	case "/switch":
		s, ok := c.sessionAt(fields)
		if !ok {
			break
		}
		c.active = s.ID
		infoColor.Printf("switched to %q\n", s.Title)
		c.printHistory()
	case "/delete":
		s, ok := c.sessionAt(fields)
		if !ok {
			break
		}
		if err := c.do(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil, nil); err != nil {
			errorColor.Println(err)
			break
		}
		if c.active == s.ID {
			c.active = ""
		}
		infoColor.Printf("deleted %q\n", s.Title)
	case "/login":
		if len(fields) != 3 {
			errorColor.Println("usage: /login EMAIL PASSWORD")
			break
		}
		c.signIn(fields[1], fields[2])
	case "/signup":
		if len(fields) != 3 {
			errorColor.Println("usage: /signup EMAIL PASSWORD")
			break
		}
		var resp struct {
			Token string `json:"token"`
		}
		err := c.do(http.MethodPost, "/api/v1/auth/signup",
			map[string]string{"email": fields[1], "password": fields[2]}, &resp)
		if err != nil {
			errorColor.Println(err)
			break
		}
		c.token = resp.Token
		c.active = ""
		infoColor.Println("account created, now on the remote store")
	case "/logout":
		c.signOut()
	case "/migrate":
		var result struct {
			Sessions int `json:"sessions"`
			Messages int `json:"messages"`
		}
		if err := c.do(http.MethodPost, "/api/v1/migrate", nil, &result); err != nil {
			errorColor.Println(err)
			break
		}
		infoColor.Printf("migrated %d sessions and %d messages\n", result.Sessions, result.Messages)
		if err := c.refreshSessions(); err == nil {
			c.printSessions()
		}
	default:
		errorColor.Printf("unknown command %s, try /help\n", fields[0])
	}
	return true
}

func (c *client) sessionAt(fields []string) (session, bool) {
	if len(fields) != 2 {
		errorColor.Printf("usage: %s N\n", fields[0])
		return session{}, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(c.sessions) {
		errorColor.Println("no such conversation, /list shows the numbers")
		return session{}, false
	}
	return c.sessions[n-1], true
}

func main() {
	serverURL := flag.String("server", "http://localhost:8081", "counsel server URL")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(*serverURL, "/"),
		http:    &http.Client{Timeout: 3 * time.Minute},
	}

	promptColor.Println("counsel - your career counselor (/help for commands)")
	if err := c.refreshSessions(); err != nil {
		errorColor.Printf("cannot reach server at %s: %v\n", c.baseURL, err)
		os.Exit(1)
	}
	c.printSessions()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !c.handleCommand(line) {
				break
			}
			continue
		}
		c.send(line)
	}
}
