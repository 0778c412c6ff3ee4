package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmbento/omnicall-ai/internal/client"
)

var (
	chatCartridge string
	chatSession   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Text conversation with a cartridge through the server",
	Long: `Hold a text conversation with a cartridge. Every answered message costs
one credit. On a terminal the command is interactive (Ctrl+D to quit);
otherwise each line of stdin is sent as one message.

Examples:
  omnicall chat --cartridge h-concierge-1
  echo "What time is checkout?" | omnicall chat -c h-concierge-1`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addCartridgeFlag(chatCmd, &chatCartridge)
	chatCmd.Flags().StringVar(&chatSession, "session", "", "continue an existing session")
	rootCmd.AddCommand(chatCmd)
}

// chatter sends one message and remembers the session across calls.
type chatter struct {
	c         *client.Client
	sessionID string
}

func (ch *chatter) send(cmd *cobra.Command, text string) (string, error) {
	resp, err := ch.c.Chat(cmd.Context(), client.ChatRequest{
		UserID:      userID,
		CartridgeID: chatCartridge,
		SessionID:   ch.sessionID,
		Message:     text,
	})
	if err != nil {
		if client.IsPaymentRequired(err) {
			return "", fmt.Errorf("no credits left for %s; add some with 'omnicall credits add'", userID)
		}
		return "", err
	}
	ch.sessionID = resp.SessionID
	return resp.Reply, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ch := &chatter{c: apiClient, sessionID: chatSession}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return chatInteractive(cmd, ch, fd)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := ch.send(cmd, line)
		if err != nil {
			return err
		}
		fmt.Println(reply)
	}
	return scanner.Err()
}

func chatInteractive(cmd *cobra.Command, ch *chatter, fd int) error {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw terminal: %w", err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "you> ")
	fmt.Fprintf(t, "Chatting with %s as %s. Ctrl+D to quit.\n", chatCartridge, userID)

	for {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			if ch.sessionID != "" {
				fmt.Fprintf(t, "Session %s\n", ch.sessionID)
			}
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		reply, err := ch.send(cmd, line)
		if err != nil {
			fmt.Fprintf(t, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(t, "%s> %s\n", chatCartridge, reply)
	}
}
