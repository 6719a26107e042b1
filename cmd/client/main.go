// Command client is an interactive terminal client for the news server.
// It speaks the newline-framed JSON protocol over TCP and renders the
// server's events as they arrive, so several instances side by side show
// the fanout live.
package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"news-lab/auth"
	"news-lab/domain"
	"news-lab/domain/event"
	"news-lab/protocol"
)

type Config struct {
	ServerAddr    string        `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	AuthSecret    string        `envconfig:"AUTH_SECRET"`
	TokenValidity time.Duration `envconfig:"TOKEN_VALIDITY" default:"24h"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	conn, err := net.Dial("tcp", config.ServerAddr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", config.ServerAddr, err)
	}
	defer conn.Close()
	color.Cyan.Printf("Connected to %s\n", config.ServerAddr)
	printHelp()

	codec := protocol.NewCodec()
	go receiveLoop(conn, codec)

	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print("> "); scanner.Scan(); fmt.Print("> ") {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		cmd, err := parseCommand(line, config)
		if err != nil {
			color.Red.Printf("%v\n", err)
			continue
		}
		frame, err := codec.EncodeCommand(cmd)
		if err != nil {
			color.Red.Printf("%v\n", err)
			continue
		}
		if _, err := conn.Write(append(frame, '\n')); err != nil {
			log.Fatalf("Connection lost: %v", err)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  auth <userId>
  publish <title> | <content> | <category>
  update <documentId> | [title] | [content] | [category]
  delete <documentId>
  list | subscribe | search <query> | ping | quit`)
}

// parseCommand maps one input line to a protocol command. Pipe-separated
// segments keep titles and contents free to contain spaces.
func parseCommand(line string, config Config) (domain.Command, error) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "auth":
		if rest == "" {
			return nil, fmt.Errorf("usage: auth <userId>")
		}
		if config.AuthSecret != "" {
			token, err := auth.GenerateToken(config.AuthSecret, rest, config.TokenValidity)
			if err != nil {
				return nil, fmt.Errorf("token generation failed: %w", err)
			}
			return domain.AuthCommand{Token: token}, nil
		}
		return domain.AuthCommand{UserID: rest}, nil
	case "publish":
		parts := splitSegments(rest)
		if len(parts) != 3 {
			return nil, fmt.Errorf("usage: publish <title> | <content> | <category>")
		}
		return domain.PublishCommand{Title: parts[0], Content: parts[1], Category: parts[2]}, nil
	case "update":
		parts := splitSegments(rest)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("usage: update <documentId> | [title] | [content] | [category]")
		}
		cmd := domain.UpdateCommand{DocumentID: parts[0]}
		fields := []**string{&cmd.Patch.Title, &cmd.Patch.Content, &cmd.Patch.Category}
		for i, target := range fields {
			if len(parts) > i+1 && parts[i+1] != "" {
				*target = lo.ToPtr(parts[i+1])
			}
		}
		return cmd, nil
	case "delete":
		if rest == "" {
			return nil, fmt.Errorf("usage: delete <documentId>")
		}
		return domain.DeleteCommand{DocumentID: rest}, nil
	case "list":
		return domain.GetAllNewsCommand{}, nil
	case "subscribe":
		return domain.SubscribeCommand{}, nil
	case "search":
		if rest == "" {
			return nil, fmt.Errorf("usage: search <query>")
		}
		return domain.SearchCommand{Query: rest}, nil
	case "ping":
		return domain.PingCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
}

func splitSegments(s string) []string {
	return lo.Map(strings.Split(s, "|"), func(part string, _ int) string {
		return strings.TrimSpace(part)
	})
}

func receiveLoop(conn net.Conn, codec *protocol.Codec) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		evt, err := codec.DecodeEvent(scanner.Bytes())
		if err != nil {
			color.Red.Printf("\nUndecodable frame: %v\n> ", err)
			continue
		}
		fmt.Print("\n")
		render(evt)
		fmt.Print("> ")
	}
	color.Red.Println("\nServer closed the connection")
	os.Exit(0)
}

func render(evt event.Event) {
	switch e := evt.(type) {
	case event.Subscribed:
		color.Cyan.Println("Subscribed to live updates")
	case event.NewsList:
		renderTable(e.News)
	case event.NewsPublished:
		color.Green.Printf("NEW  [%s] %s  %s (by %s)\n",
			e.Item.Category, e.Item.Title, e.Item.DocumentID, e.Item.AuthorID)
	case event.NewsUpdated:
		color.Yellow.Printf("UPD  [%s] %s  %s (by %s)\n",
			e.Item.Category, e.Item.Title, e.Item.DocumentID, e.Item.AuthorID)
	case event.NewsDeleted:
		color.Red.Printf("DEL  %s\n", e.DocumentID)
	case event.Pong:
		color.Gray.Println("pong")
	case event.Error:
		color.Red.Printf("server error: %s\n", e.Message)
	}
}

func renderTable(items []domain.NewsItem) {
	if len(items) == 0 {
		color.Gray.Println("No news yet")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Title", "Category", "Published", "Author"})
	for _, item := range items {
		table.Append([]string{
			item.DocumentID,
			item.Title,
			item.Category,
			item.PublishDate.Format(time.RFC3339),
			item.AuthorID,
		})
	}
	table.Render()
}
