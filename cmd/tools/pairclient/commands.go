package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	pairclient "github.com/studyhall/pairhub/internal/client/pair"
	"github.com/studyhall/pairhub/internal/model/pair"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	chatNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("135")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

var extendHours int

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and remember its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.CreateSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := c.SaveSessionToStorage(); err != nil {
			return fmt.Errorf("remember session: %w", err)
		}

		fmt.Println(headerStyle.Render("Session created"))
		fmt.Println(id)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [session-id]",
	Short: "Check that a session still exists on the relay",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := resolveSessionID(c, args)
		if err != nil {
			return err
		}
		ok, err := c.RestoreSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(errorStyle.Render("Session not found: " + id))
			return nil
		}
		fmt.Println(headerStyle.Render("Session " + id + " is active"))
		return nil
	},
}

var extendCmd = &cobra.Command{
	Use:   "extend [session-id]",
	Short: "Push back a session's expiry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := resolveSessionID(c, args)
		if err != nil {
			return err
		}
		if ok, err := c.RestoreSession(cmd.Context(), id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("session %s not found", id)
		}

		ok, err := c.ExtendSession(cmd.Context(), extendHours)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("relay refused to extend session %s", id)
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("Session %s extended", id)))
		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join [session-id]",
	Short: "Join a session and chat or edit from the terminal",
	Long: `Join a session and stream its events to the terminal.

Lines typed on stdin are sent as chat messages. Commands:
  /code <text>     replace the shared code
  /output <text>   replace the shared output
  /who             list participants
  /quit            leave the session and exit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := resolveSessionID(c, args)
		if err != nil {
			return err
		}

		c.SetCallbacks(printCallbacks(c))
		if err := c.JoinSession(cmd.Context(), id); err != nil {
			return err
		}
		if err := c.SaveSessionToStorage(); err != nil {
			fmt.Println(errorStyle.Render("could not remember session: " + err.Error()))
		}
		fmt.Println(headerStyle.Render("Joined " + id + " as " + c.Username()))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return readInput(ctx, c)
	},
}

func init() {
	extendCmd.Flags().IntVar(&extendHours, "hours", 24, "Hours to add to the session's lifetime")
}

func printCallbacks(c *pairclient.Client) pairclient.Callbacks {
	return pairclient.Callbacks{
		OnCodeUpdate: func(code, from string) {
			label := "code"
			if from != "" {
				label = "code from " + from
			}
			fmt.Println(metaStyle.Render(label))
			fmt.Println(codeStyle.Render(code))
		},
		OnOutputUpdate: func(output string) {
			if output == "" {
				return
			}
			fmt.Println(metaStyle.Render("output"))
			fmt.Println(codeStyle.Render(output))
		},
		OnParticipantJoined: func(name string, participants []pair.Participant) {
			if name == c.Username() {
				return
			}
			fmt.Println(metaStyle.Render(fmt.Sprintf("%s joined (%d here)", name, len(participants))))
		},
		OnParticipantLeft: func(participants []pair.Participant) {
			fmt.Println(metaStyle.Render(fmt.Sprintf("someone left (%d here)", len(participants))))
		},
		OnCursorUpdate: func(position json.RawMessage, name, _ string) {
			if verbose {
				fmt.Println(metaStyle.Render(name + " cursor " + string(position)))
			}
		},
		OnTypingStart: func(name string) {
			fmt.Println(metaStyle.Render(name + " is typing..."))
		},
		OnChatMessage: func(msg pair.ChatMessage) {
			stamp := msg.Timestamp.Local().Format(time.Kitchen)
			fmt.Printf("%s %s %s\n", metaStyle.Render(stamp), chatNameStyle.Render(msg.Username+":"), msg.Message)
		},
		OnError: func(message string) {
			fmt.Println(errorStyle.Render(message))
		},
	}
}

// readInput forwards stdin lines until EOF, /quit or ctx is done.
func readInput(ctx context.Context, c *pairclient.Client) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.LeaveSession()
			return nil
		case line, ok := <-lines:
			if !ok {
				c.LeaveSession()
				return nil
			}
			done, err := handleLine(c, line)
			if err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			if done {
				c.LeaveSession()
				return nil
			}
		}
	}
}

func handleLine(c *pairclient.Client, line string) (bool, error) {
	switch {
	case line == "/quit":
		return true, nil
	case line == "/who":
		for _, p := range c.Participants() {
			marker := ""
			if c.IsTyping(p.Username) {
				marker = " (typing)"
			}
			fmt.Println(metaStyle.Render("- " + p.Username + marker))
		}
		return false, nil
	case strings.HasPrefix(line, "/code "):
		return false, c.SendCodeChange(strings.TrimPrefix(line, "/code "))
	case strings.HasPrefix(line, "/output "):
		return false, c.SendOutputChange(strings.TrimPrefix(line, "/output "))
	default:
		return false, c.SendChatMessage(line)
	}
}
